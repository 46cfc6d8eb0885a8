package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PeriodStats aggregates applications created in a period. Revenue sums final
// prices, falling back to the estimate, and leaves rejected applications out.
type PeriodStats struct {
	Count   int   `json:"count"`
	Revenue int64 `json:"revenue"`
}

// Stats is the dashboard summary.
type Stats struct {
	Today    PeriodStats    `json:"today"`
	Week     PeriodStats    `json:"week"`
	Month    PeriodStats    `json:"month"`
	AllTime  PeriodStats    `json:"all_time"`
	ByStatus map[Status]int `json:"by_status"`
}

// DayPoint is one day of the trend series.
type DayPoint struct {
	Day     string `json:"day"`
	Count   int    `json:"count"`
	Revenue int64  `json:"revenue"`
}

// Bucket counts one characteristic value.
type Bucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// TopCharacteristics lists the most frequent values per characteristic.
type TopCharacteristics struct {
	Colors     []Bucket `json:"colors"`
	Lengths    []Bucket `json:"lengths"`
	Structures []Bucket `json:"structures"`
}

const (
	DefaultTrendDays = 7
	MaxTrendDays     = 90
)

// Stats computes counts and revenue. Day boundaries follow now's location;
// the week and month are the trailing 7 and 30 days.
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	today := startOfDay(now)
	periods := []struct {
		dst  *PeriodStats
		from time.Time
	}{
		{dst: new(PeriodStats), from: today},
		{dst: new(PeriodStats), from: now.AddDate(0, 0, -7)},
		{dst: new(PeriodStats), from: now.AddDate(0, 0, -30)},
		{dst: new(PeriodStats), from: time.Time{}},
	}

	for _, p := range periods {
		b := sq.Select("COUNT(*)", "COALESCE(SUM(CASE WHEN status <> 'rejected' THEN COALESCE(final_price, estimated_price) ELSE 0 END), 0)").
			From("applications")
		if !p.from.IsZero() {
			b = b.Where(sq.GtOrEq{"created_at": formatTime(p.from)})
		}
		if err := b.RunWith(s.db).QueryRowContext(ctx).Scan(&p.dst.Count, &p.dst.Revenue); err != nil {
			return Stats{}, fmt.Errorf("aggregate applications: %w", err)
		}
	}

	byStatus, err := s.countByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Today:    *periods[0].dst,
		Week:     *periods[1].dst,
		Month:    *periods[2].dst,
		AllTime:  *periods[3].dst,
		ByStatus: byStatus,
	}, nil
}

func (s *Store) countByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := sq.Select("status", "COUNT(*)").
		From("applications").
		GroupBy("status").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int, len(Statuses()))
	for _, st := range Statuses() {
		out[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

// CountByStatus returns the number of applications in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.countByStatus(ctx)
}

// Trend returns one point per day for the last days days, oldest first, with
// empty days included. days is clamped to [1, MaxTrendDays]; 0 means DefaultTrendDays.
func (s *Store) Trend(ctx context.Context, now time.Time, days int) ([]DayPoint, error) {
	if days == 0 {
		days = DefaultTrendDays
	}
	days = max(1, min(days, MaxTrendDays))

	first := startOfDay(now).AddDate(0, 0, -(days - 1))
	points := make([]DayPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		day := first.AddDate(0, 0, i).Format("2006-01-02")
		points[i].Day = day
		index[day] = i
	}

	rows, err := sq.Select("created_at", "status", "COALESCE(final_price, estimated_price)").
		From("applications").
		Where(sq.GtOrEq{"created_at": formatTime(first)}).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			created, status string
			revenue         int64
		)
		if err := rows.Scan(&created, &status, &revenue); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		i, ok := index[t.In(now.Location()).Format("2006-01-02")]
		if !ok {
			continue
		}
		points[i].Count++
		if Status(status) != StatusRejected {
			points[i].Revenue += revenue
		}
	}
	return points, rows.Err()
}

// TopCharacteristics returns up to limit most frequent colors, length bands
// and structures.
func (s *Store) TopCharacteristics(ctx context.Context, limit int) (TopCharacteristics, error) {
	if limit <= 0 {
		limit = 5
	}
	var (
		out TopCharacteristics
		err error
	)
	if out.Colors, err = s.top(ctx, "color", limit); err != nil {
		return TopCharacteristics{}, err
	}
	if out.Lengths, err = s.top(ctx, "length_band", limit); err != nil {
		return TopCharacteristics{}, err
	}
	if out.Structures, err = s.top(ctx, "structure", limit); err != nil {
		return TopCharacteristics{}, err
	}
	return out, nil
}

func (s *Store) top(ctx context.Context, column string, limit int) ([]Bucket, error) {
	rows, err := sq.Select(column, "COUNT(*) AS n").
		From("applications").
		GroupBy(column).
		OrderBy("n DESC", column).
		Limit(uint64(limit)).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", column, err)
	}
	defer rows.Close()

	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Value, &b.Count); err != nil {
			return nil, fmt.Errorf("scan top %s: %w", column, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
