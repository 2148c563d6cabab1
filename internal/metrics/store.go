package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"calorie-app/internal/nutrition"
	"calorie-app/internal/resolver"
)

const timeLayout = "2006-01-02 15:04:05"

// Store persists resolution traces to SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// RecordTrace saves one resolution and its tier attempts.
func (s *Store) RecordTrace(ctx context.Context, tr *resolver.Trace, r nutrition.Result) error {
	ts := tr.StartedAt
	if ts.IsZero() {
		ts = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resolution_traces (
			id, label, tokens, branded, source, matched_name, confidence, weight_grams,
			total_calories, total_protein, total_carbs, total_fat, elapsed_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Label, strings.Join(tr.Tokens, " "), tr.Branded, string(r.Source), r.MatchedName,
		r.Confidence, r.WeightGrams, r.Calories, r.Protein, r.Carbs, r.Fat,
		millis(tr.Elapsed), ts.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert trace %s: %w", tr.ID, err)
	}

	for i, a := range tr.Attempts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tier_attempts (trace_id, position, tier, outcome, elapsed_ms, confidence, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tr.ID, i, string(a.Tier), string(a.Outcome), millis(a.Elapsed), a.Confidence, a.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert attempt %d of trace %s: %w", i, tr.ID, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DailyUsage summarizes resolutions for a single day.
type DailyUsage struct {
	Date          string
	Resolutions   int
	Fallbacks     int
	AvgConfidence float64
	TotalCalories float64
}

// GetDailyUsage retrieves usage for the last N days, newest first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(created_at) AS day,
		       COUNT(*),
		       SUM(CASE WHEN source IN (?, ?) THEN 1 ELSE 0 END),
		       AVG(confidence),
		       SUM(total_calories)
		FROM resolution_traces
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day DESC`,
		string(nutrition.SourceCategoryFallback), string(nutrition.SourceGenericFallback), s.since(days))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.Resolutions, &u.Fallbacks, &u.AvgConfidence, &u.TotalCalories); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// TierStat aggregates the attempts of one tier.
type TierStat struct {
	Tier         nutrition.Source
	Attempts     int
	Hits         int
	Misses       int
	Errors       int
	AvgElapsedMS float64
}

// HitRate is Hits over Attempts, or zero.
func (t TierStat) HitRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Hits) / float64(t.Attempts)
}

// TierStats reports per-tier outcomes over the last N days, ordered by tier name.
func (s *Store) TierStats(ctx context.Context, days int) ([]TierStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.tier,
		       COUNT(*),
		       SUM(CASE WHEN a.outcome = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN a.outcome = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN a.outcome = ? THEN 1 ELSE 0 END),
		       AVG(a.elapsed_ms)
		FROM tier_attempts a
		JOIN resolution_traces t ON t.id = a.trace_id
		WHERE t.created_at >= ?
		GROUP BY a.tier
		ORDER BY a.tier`,
		string(resolver.OutcomeHit), string(resolver.OutcomeMiss), string(resolver.OutcomeError), s.since(days))
	if err != nil {
		return nil, fmt.Errorf("failed to query tier stats: %w", err)
	}
	defer rows.Close()

	var stats []TierStat
	for rows.Next() {
		var st TierStat
		var tier string
		if err := rows.Scan(&tier, &st.Attempts, &st.Hits, &st.Misses, &st.Errors, &st.AvgElapsedMS); err != nil {
			return nil, fmt.Errorf("failed to scan tier stats: %w", err)
		}
		st.Tier = nutrition.Source(tier)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Cleanup removes traces older than the specified number of days and
// returns how many were deleted.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := s.since(olderThanDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM tier_attempts
		WHERE trace_id IN (SELECT id FROM resolution_traces WHERE created_at < ?)`, threshold); err != nil {
		return 0, fmt.Errorf("failed to delete attempts: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM resolution_traces WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete traces: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (s *Store) since(days int) string {
	return s.now().UTC().AddDate(0, 0, -days).Format(timeLayout)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
