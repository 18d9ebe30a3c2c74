package store

import (
	"context"
	"fmt"
	"time"
)

// StatsFilter scopes a stats query to one service (optional) and a
// trailing window of hours.
type StatsFilter struct {
	Service string
	Hours   int
}

// CountByLevel, CountByService, and CountByErrorType share the GROUP BY
// pattern below, parameterized by the column being counted and a row cap
// (none for level, 20 services, 10 error types); CountByErrorType also
// skips empty values.
func (s *Store) CountByLevel(ctx context.Context, f StatsFilter) (map[string]int, error) {
	return s.countBy(ctx, "store.CountByLevel", "level", f, 0)
}

func (s *Store) CountByService(ctx context.Context, f StatsFilter) (map[string]int, error) {
	return s.countBy(ctx, "store.CountByService", "service", f, 20)
}

// ModelStats is one model's aggregate row in the by-model stat:
// count plus summed token/cost figures (NULL summed as 0).
type ModelStats struct {
	Count     int
	TokensIn  int
	TokensOut int
	CostUSD   float64
}

// ModelCostStats returns per-model ModelStats within the window.
func (s *Store) ModelCostStats(ctx context.Context, f StatsFilter) (map[string]ModelStats, error) {
	result := map[string]ModelStats{}
	err := withSpan(ctx, "store.ModelCostStats", func(ctx context.Context) error {
		since := time.Now().UTC().Add(-time.Duration(f.Hours) * time.Hour)
		query := `
			SELECT model, count(*),
				coalesce(sum(tokens_in), 0), coalesce(sum(tokens_out), 0), coalesce(sum(cost_usd), 0)
			FROM log_entries
			WHERE timestamp >= $1 AND model != ''` + serviceClause(f) + `
			GROUP BY model ORDER BY count(*) DESC`

		args := []any{since}
		if f.Service != "" {
			args = append(args, f.Service)
		}

		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("model cost stats: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var model string
			var ms ModelStats
			if err := rows.Scan(&model, &ms.Count, &ms.TokensIn, &ms.TokensOut, &ms.CostUSD); err != nil {
				return err
			}
			result[model] = ms
		}
		return rows.Err()
	})
	return result, err
}

func (s *Store) CountByErrorType(ctx context.Context, f StatsFilter) (map[string]int, error) {
	return s.countByNonEmpty(ctx, "store.CountByErrorType", "error_type", f, 10)
}

func (s *Store) countBy(ctx context.Context, spanName, column string, f StatsFilter, top int) (map[string]int, error) {
	return s.groupCount(ctx, spanName, fmt.Sprintf(
		`SELECT %s, count(*) FROM log_entries WHERE timestamp >= $1%s GROUP BY %s ORDER BY count(*) DESC`,
		column, serviceClause(f), column), f, top)
}

func (s *Store) countByNonEmpty(ctx context.Context, spanName, column string, f StatsFilter, top int) (map[string]int, error) {
	return s.groupCount(ctx, spanName, fmt.Sprintf(
		`SELECT %s, count(*) FROM log_entries WHERE timestamp >= $1 AND %s != ''%s GROUP BY %s ORDER BY count(*) DESC`,
		column, column, serviceClause(f), column), f, top)
}

func serviceClause(f StatsFilter) string {
	if f.Service == "" {
		return ""
	}
	return " AND service = $2"
}

func (s *Store) groupCount(ctx context.Context, spanName, query string, f StatsFilter, top int) (map[string]int, error) {
	result := map[string]int{}
	err := withSpan(ctx, spanName, func(ctx context.Context) error {
		since := time.Now().UTC().Add(-time.Duration(f.Hours) * time.Hour)
		args := []any{since}
		if f.Service != "" {
			args = append(args, f.Service)
		}
		if top > 0 {
			query += fmt.Sprintf(" LIMIT %d", top)
		}

		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("group count %s: %w", query, err)
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				return err
			}
			result[key] = count
		}
		return rows.Err()
	})
	return result, err
}

// LatencyStats is the latency aggregate: avg/min/max plus
// the continuous p50/p95/p99 percentiles over non-null durations.
type LatencyStats struct {
	Avg, Min, Max float64
	P50, P95, P99 float64
}

// Latency computes LatencyStats within the window, using Postgres's own
// aggregate and percentile_cont functions to avoid pulling the full
// sample set into the service.
func (s *Store) Latency(ctx context.Context, f StatsFilter) (LatencyStats, error) {
	var out LatencyStats
	err := withSpan(ctx, "store.Latency", func(ctx context.Context) error {
		since := time.Now().UTC().Add(-time.Duration(f.Hours) * time.Hour)
		query := `
			SELECT
				coalesce(avg(duration_ms), 0),
				coalesce(min(duration_ms), 0),
				coalesce(max(duration_ms), 0),
				percentile_cont(0.50) WITHIN GROUP (ORDER BY duration_ms),
				percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_ms),
				percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_ms)
			FROM log_entries WHERE timestamp >= $1 AND duration_ms IS NOT NULL` + serviceClause(f)

		args := []any{since}
		if f.Service != "" {
			args = append(args, f.Service)
		}

		var p50N, p95N, p99N *float64
		if scanErr := s.db.QueryRow(ctx, query, args...).Scan(
			&out.Avg, &out.Min, &out.Max, &p50N, &p95N, &p99N); scanErr != nil {
			return fmt.Errorf("latency stats: %w", scanErr)
		}
		if p50N != nil {
			out.P50 = *p50N
		}
		if p95N != nil {
			out.P95 = *p95N
		}
		if p99N != nil {
			out.P99 = *p99N
		}
		return nil
	})
	return out, err
}

// WindowStats is the set of counters the anomaly detector compares
// period-over-period.
type WindowStats struct {
	Total      int
	Errors     int
	ErrorTypes map[string]int
	AvgLatency float64
}

// WindowStatsInRange computes WindowStats for an explicit [since, until)
// range, the building block for period-over-period anomaly comparison.
func (s *Store) WindowStatsInRange(ctx context.Context, service string, since, until time.Time) (*WindowStats, error) {
	var ws WindowStats
	err := withSpan(ctx, "store.WindowStatsInRange", func(ctx context.Context) error {
		clause := " AND timestamp < $2"
		args := []any{since, until}
		if service != "" {
			clause += " AND service = $3"
			args = append(args, service)
		}

		if err := s.db.QueryRow(ctx, `
			SELECT count(*), count(*) FILTER (WHERE error_type != ''), coalesce(avg(duration_ms), 0)
			FROM log_entries WHERE timestamp >= $1`+clause, args...).
			Scan(&ws.Total, &ws.Errors, &ws.AvgLatency); err != nil {
			return fmt.Errorf("window stats: %w", err)
		}

		rows, err := s.db.Query(ctx, `
			SELECT error_type, count(*) FROM log_entries
			WHERE timestamp >= $1`+clause+` AND error_type != '' GROUP BY error_type`, args...)
		if err != nil {
			return fmt.Errorf("window error types: %w", err)
		}
		defer rows.Close()
		ws.ErrorTypes = map[string]int{}
		for rows.Next() {
			var errType string
			var count int
			if err := rows.Scan(&errType, &count); err != nil {
				return err
			}
			ws.ErrorTypes[errType] = count
		}
		return rows.Err()
	})
	return &ws, err
}

// TotalCount returns the number of entries in the window. The anomaly
// detector takes its totals from WindowStatsInRange instead.
func (s *Store) TotalCount(ctx context.Context, f StatsFilter) (int, error) {
	var total int
	err := withSpan(ctx, "store.TotalCount", func(ctx context.Context) error {
		since := time.Now().UTC().Add(-time.Duration(f.Hours) * time.Hour)
		query := `SELECT count(*) FROM log_entries WHERE timestamp >= $1` + serviceClause(f)
		args := []any{since}
		if f.Service != "" {
			args = append(args, f.Service)
		}
		return s.db.QueryRow(ctx, query, args...).Scan(&total)
	})
	return total, err
}
