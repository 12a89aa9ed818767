package vault

import (
	"context"
	"fmt"
	"sync"

	"market-insight-bot/config"

	"github.com/hashicorp/vault/api"
)

// Secrets holds the application secrets managed in Vault
type Secrets struct {
	DBPassword   string `json:"db_password"`
	JWTSecret    string `json:"jwt_secret"`
	MarketAPIKey string `json:"market_api_key"`
}

// Client wraps the HashiCorp Vault client. With Vault disabled it serves
// whatever was stored locally, so development setups run without a
// Vault deployment.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *Secrets
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// LoadSecrets reads the application secrets. Disabled Vault yields empty
// secrets so configuration falls back to environment values.
func (c *Client) LoadSecrets(ctx context.Context) (*Secrets, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return &Secrets{}, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secrets not found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	secrets := &Secrets{
		DBPassword:   getString(data, "db_password"),
		JWTSecret:    getString(data, "jwt_secret"),
		MarketAPIKey: getString(data, "market_api_key"),
	}

	c.mu.Lock()
	c.cached = secrets
	c.mu.Unlock()

	return secrets, nil
}

// StoreSecrets writes the application secrets to Vault. With Vault
// disabled they are kept in memory only.
func (c *Client) StoreSecrets(ctx context.Context, secrets *Secrets) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cached = secrets
		c.mu.Unlock()
		return nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"db_password":    secrets.DBPassword,
			"jwt_secret":     secrets.JWTSecret,
			"market_api_key": secrets.MarketAPIKey,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, payload); err != nil {
		return fmt.Errorf("failed to store secrets in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = secrets
	c.mu.Unlock()

	return nil
}

// ApplyToConfig overrides config values with Vault-managed secrets where
// present. Environment configuration stays authoritative when a secret
// is absent.
func ApplyToConfig(cfg *config.Config, secrets *Secrets) {
	if secrets.DBPassword != "" {
		cfg.DatabaseConfig.Password = secrets.DBPassword
	}
	if secrets.JWTSecret != "" {
		cfg.AuthConfig.JWTSecret = secrets.JWTSecret
	}
	if secrets.MarketAPIKey != "" {
		cfg.MarketDataConfig.APIKey = secrets.MarketAPIKey
	}
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
