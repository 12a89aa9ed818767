package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"market-insight-bot/internal/logging"

	"github.com/gorilla/websocket"
)

// PriceStream maintains live last-trade prices for subscribed symbols over
// a Binance-style miniTicker websocket stream. The evaluator uses it as a
// cheap "current price" source and falls back to REST when a symbol has no
// fresh tick.
type PriceStream struct {
	streamURL string
	logger    *logging.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	symbols map[string]bool
	prices  map[string]tickedPrice
	done    chan struct{}
	running bool
}

type tickedPrice struct {
	price float64
	at    time.Time
}

type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// NewPriceStream creates a price stream for the given websocket endpoint
func NewPriceStream(streamURL string, logger *logging.Logger) *PriceStream {
	return &PriceStream{
		streamURL: streamURL,
		logger:    logger.WithComponent("price_stream"),
		symbols:   make(map[string]bool),
		prices:    make(map[string]tickedPrice),
		done:      make(chan struct{}),
	}
}

// Subscribe adds a symbol to the stream. Takes effect on the next (re)connect.
func (ps *PriceStream) Subscribe(symbol string) {
	ps.mu.Lock()
	ps.symbols[strings.ToUpper(symbol)] = true
	ps.mu.Unlock()
}

// LastPrice returns the most recent streamed price for a symbol, if it is
// fresher than maxAge.
func (ps *PriceStream) LastPrice(symbol string, maxAge time.Duration) (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	tp, ok := ps.prices[strings.ToUpper(symbol)]
	if !ok || time.Since(tp.at) > maxAge {
		return 0, false
	}
	return tp.price, true
}

// Start launches the read loop with automatic reconnect
func (ps *PriceStream) Start() {
	ps.mu.Lock()
	if ps.running {
		ps.mu.Unlock()
		return
	}
	ps.running = true
	ps.mu.Unlock()

	go ps.run()
}

// Stop closes the stream and halts reconnect attempts
func (ps *PriceStream) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.running {
		return
	}
	ps.running = false
	close(ps.done)
	if ps.conn != nil {
		ps.conn.Close()
	}
}

func (ps *PriceStream) run() {
	backoff := time.Second
	for {
		select {
		case <-ps.done:
			return
		default:
		}

		if err := ps.connectAndRead(); err != nil {
			ps.logger.Warn("Stream disconnected, reconnecting", "error", err, "backoff", backoff.String())
		}

		select {
		case <-ps.done:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (ps *PriceStream) connectAndRead() error {
	ps.mu.RLock()
	streams := make([]string, 0, len(ps.symbols))
	for symbol := range ps.symbols {
		streams = append(streams, fmt.Sprintf("%s@miniTicker", strings.ToLower(symbol)))
	}
	ps.mu.RUnlock()

	if len(streams) == 0 {
		return fmt.Errorf("no symbols subscribed")
	}

	conn, _, err := websocket.DefaultDialer.Dial(ps.streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	ps.mu.Lock()
	ps.conn = conn
	ps.mu.Unlock()

	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	ps.logger.Info("Price stream connected", "streams", len(streams))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}

		var event miniTickerEvent
		if err := json.Unmarshal(message, &event); err != nil || event.Symbol == "" {
			continue
		}

		var price float64
		if _, err := fmt.Sscanf(event.Close, "%f", &price); err != nil || price <= 0 {
			continue
		}

		ps.mu.Lock()
		ps.prices[event.Symbol] = tickedPrice{price: price, at: time.Now()}
		ps.mu.Unlock()
	}
}
