package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// USERS
// ============================================================================

// CreateUser inserts a new API user
func (r *Repository) CreateUser(ctx context.Context, user *APIUser) error {
	query := `
		INSERT INTO api_users (id, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(ctx, query, user.ID, user.Username, user.PasswordHash).
		Scan(&user.CreatedAt)
}

// GetUserByUsername retrieves a user by username
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*APIUser, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM api_users
		WHERE username = $1
	`
	user := &APIUser{}
	err := r.db.Pool.QueryRow(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ============================================================================
// PREDICTIONS
// ============================================================================

const predictionColumns = `
	id, user_id, symbol, timeframe, direction, strategy_type, entry_price,
	stop_loss, take_profits, signals, confidence, status, outcome,
	accuracy_score, rr_achieved, mfe, mae, entry_time, expires_at, closed_at,
	created_at, updated_at`

// CreatePrediction persists a prediction. Entries are assumed filled at
// save time, so the stored status is active immediately.
func (r *Repository) CreatePrediction(ctx context.Context, p *Prediction) error {
	takeProfits, err := json.Marshal(p.TakeProfits)
	if err != nil {
		return fmt.Errorf("failed to marshal take profits: %w", err)
	}
	signals, err := json.Marshal(p.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	p.Status = PredictionStatusActive
	query := `
		INSERT INTO predictions (user_id, symbol, timeframe, direction, strategy_type,
			entry_price, stop_loss, take_profits, signals, confidence, status,
			entry_time, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		p.UserID, p.Symbol, p.Timeframe, p.Direction, p.Strategy,
		p.EntryPrice, p.StopLoss, takeProfits, signals, p.Confidence, p.Status,
		p.EntryTime, p.ExpiresAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetPredictionByID retrieves a prediction by ID
func (r *Repository) GetPredictionByID(ctx context.Context, id int64) (*Prediction, error) {
	query := `SELECT` + predictionColumns + ` FROM predictions WHERE id = $1`
	rows, err := r.db.Pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	preds, err := scanPredictions(rows)
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return nil, ErrNotFound
	}
	return preds[0], nil
}

// GetActivePredictions retrieves every active prediction across all users,
// ordered oldest first so long-pending entries evaluate before fresh ones.
func (r *Repository) GetActivePredictions(ctx context.Context) ([]*Prediction, error) {
	query := `SELECT` + predictionColumns + `
		FROM predictions
		WHERE status = 'active'
		ORDER BY entry_time ASC
	`
	return r.queryPredictions(ctx, query)
}

// GetPredictionsByUser retrieves a user's predictions, newest first
func (r *Repository) GetPredictionsByUser(ctx context.Context, userID string, limit int) ([]*Prediction, error) {
	query := `SELECT` + predictionColumns + `
		FROM predictions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.queryPredictions(ctx, query, userID, limit)
}

// GetRecentClosedPredictions retrieves the last n closed or expired
// predictions for exactly one (user, strategy) pair, newest first.
func (r *Repository) GetRecentClosedPredictions(ctx context.Context, userID string, strategy StrategyType, n int) ([]*Prediction, error) {
	query := `SELECT` + predictionColumns + `
		FROM predictions
		WHERE user_id = $1 AND strategy_type = $2 AND status IN ('closed', 'expired')
		ORDER BY closed_at DESC NULLS LAST
		LIMIT $3
	`
	return r.queryPredictions(ctx, query, userID, strategy, n)
}

// GetClosedPredictions retrieves all closed and expired predictions
// irrespective of user or strategy, for global insight mining.
func (r *Repository) GetClosedPredictions(ctx context.Context) ([]*Prediction, error) {
	query := `SELECT` + predictionColumns + `
		FROM predictions
		WHERE status IN ('closed', 'expired')
		ORDER BY closed_at DESC NULLS LAST
	`
	return r.queryPredictions(ctx, query)
}

// PredictionClose carries the terminal fields written when a prediction
// resolves
type PredictionClose struct {
	Status        string
	Outcome       *string
	AccuracyScore float64
	RRAchieved    float64
	MFE           float64
	MAE           float64
	ClosedAt      time.Time
}

// ClosePrediction transitions an active prediction to its terminal status.
// The update only applies while status is still active; losing the race
// returns false with no error.
func (r *Repository) ClosePrediction(ctx context.Context, id int64, close PredictionClose) (bool, error) {
	query := `
		UPDATE predictions
		SET status = $2, outcome = $3, accuracy_score = $4, rr_achieved = $5,
		    mfe = $6, mae = $7, closed_at = $8, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'active'
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		id, close.Status, close.Outcome, close.AccuracyScore, close.RRAchieved,
		close.MFE, close.MAE, close.ClosedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelPrediction cancels an active prediction on behalf of its owner.
// Same check-and-set semantics as ClosePrediction.
func (r *Repository) CancelPrediction(ctx context.Context, id int64, userID string) (bool, error) {
	query := `
		UPDATE predictions
		SET status = 'cancelled', closed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2 AND status = 'active'
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateExcursions refreshes the running MFE/MAE of an active prediction
func (r *Repository) UpdateExcursions(ctx context.Context, id int64, mfe, mae float64) error {
	query := `
		UPDATE predictions
		SET mfe = $2, mae = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'active'
	`
	_, err := r.db.Pool.Exec(ctx, query, id, mfe, mae)
	return err
}

func (r *Repository) queryPredictions(ctx context.Context, query string, args ...interface{}) ([]*Prediction, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPredictions(rows)
}

func scanPredictions(rows pgx.Rows) ([]*Prediction, error) {
	var preds []*Prediction
	for rows.Next() {
		p := &Prediction{}
		var takeProfits, signals []byte
		err := rows.Scan(
			&p.ID, &p.UserID, &p.Symbol, &p.Timeframe, &p.Direction, &p.Strategy,
			&p.EntryPrice, &p.StopLoss, &takeProfits, &signals, &p.Confidence,
			&p.Status, &p.Outcome, &p.AccuracyScore, &p.RRAchieved, &p.MFE, &p.MAE,
			&p.EntryTime, &p.ExpiresAt, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(takeProfits) > 0 {
			if err := json.Unmarshal(takeProfits, &p.TakeProfits); err != nil {
				return nil, fmt.Errorf("failed to unmarshal take profits: %w", err)
			}
		}
		if len(signals) > 0 {
			if err := json.Unmarshal(signals, &p.Signals); err != nil {
				return nil, fmt.Errorf("failed to unmarshal signals: %w", err)
			}
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

// ============================================================================
// EVALUATIONS
// ============================================================================

// CreateEvaluation appends one evaluation pass. Rows are insert-only;
// re-evaluation adds a new row rather than touching earlier ones.
func (r *Repository) CreateEvaluation(ctx context.Context, e *PredictionEvaluation) error {
	query := `
		INSERT INTO prediction_evaluations (prediction_id, outcome, price_at_eval, rr_achieved,
			mfe, mae, accuracy_score, direction_score, entry_score, rr_score, timing_score,
			bars_to_resolve)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, evaluated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		e.PredictionID, e.Outcome, e.PriceAtEval, e.RRAchieved, e.MFE, e.MAE,
		e.AccuracyScore, e.DirectionScore, e.EntryScore, e.RRScore, e.TimingScore,
		e.BarsToResolve,
	).Scan(&e.ID, &e.EvaluatedAt)
}

// GetEvaluationsForPrediction retrieves every evaluation pass for a prediction
func (r *Repository) GetEvaluationsForPrediction(ctx context.Context, predictionID int64) ([]*PredictionEvaluation, error) {
	query := `
		SELECT id, prediction_id, outcome, price_at_eval, rr_achieved, mfe, mae,
		       accuracy_score, direction_score, entry_score, rr_score, timing_score,
		       bars_to_resolve, evaluated_at
		FROM prediction_evaluations
		WHERE prediction_id = $1
		ORDER BY evaluated_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, predictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []*PredictionEvaluation
	for rows.Next() {
		e := &PredictionEvaluation{}
		err := rows.Scan(
			&e.ID, &e.PredictionID, &e.Outcome, &e.PriceAtEval, &e.RRAchieved, &e.MFE,
			&e.MAE, &e.AccuracyScore, &e.DirectionScore, &e.EntryScore, &e.RRScore,
			&e.TimingScore, &e.BarsToResolve, &e.EvaluatedAt,
		)
		if err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// ============================================================================
// GLOBAL INSIGHTS
// ============================================================================

// ReplaceGlobalInsights atomically swaps the stored insight set for a
// freshly mined one
func (r *Repository) ReplaceGlobalInsights(ctx context.Context, insights []*GlobalInsight) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM global_insights`); err != nil {
		return err
	}

	query := `
		INSERT INTO global_insights (type, source_strategy, message, confidence, evidence_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	for _, ins := range insights {
		err := tx.QueryRow(ctx, query, ins.Type, ins.SourceStrategy, ins.Message,
			ins.Confidence, ins.EvidenceCount).Scan(&ins.ID, &ins.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetGlobalInsights retrieves the stored insights, highest confidence first
func (r *Repository) GetGlobalInsights(ctx context.Context, limit int) ([]*GlobalInsight, error) {
	query := `
		SELECT id, type, source_strategy, message, confidence, evidence_count, created_at
		FROM global_insights
		ORDER BY confidence DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []*GlobalInsight
	for rows.Next() {
		ins := &GlobalInsight{}
		err := rows.Scan(&ins.ID, &ins.Type, &ins.SourceStrategy, &ins.Message,
			&ins.Confidence, &ins.EvidenceCount, &ins.CreatedAt)
		if err != nil {
			return nil, err
		}
		insights = append(insights, ins)
	}
	return insights, rows.Err()
}

// ============================================================================
// STATS
// ============================================================================

// GetStrategyStats aggregates closed predictions for one (user, strategy)
// pair
func (r *Repository) GetStrategyStats(ctx context.Context, userID string, strategy StrategyType) (*StrategyStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'win'),
			COUNT(*) FILTER (WHERE outcome = 'loss'),
			COUNT(*) FILTER (WHERE outcome = 'break_even'),
			COUNT(*) FILTER (WHERE status = 'expired'),
			COALESCE(AVG(accuracy_score), 0)
		FROM predictions
		WHERE user_id = $1 AND strategy_type = $2 AND status IN ('closed', 'expired')
	`
	stats := &StrategyStats{Strategy: strategy}
	err := r.db.Pool.QueryRow(ctx, query, userID, strategy).Scan(
		&stats.Total, &stats.Wins, &stats.Losses, &stats.BreakEven,
		&stats.Expired, &stats.AvgAccuracy,
	)
	if err != nil {
		return nil, err
	}

	decided := stats.Wins + stats.Losses + stats.BreakEven
	if decided > 0 {
		stats.WinRate = float64(stats.Wins) / float64(decided) * 100
	}
	return stats, nil
}
