package report

import (
	"context"
	"fmt"
	"time"

	"github.com/hairbuy/intake/internal/store"
)

// DashboardSource is the slice of the store the dashboard reads.
type DashboardSource interface {
	Stats(ctx context.Context, now time.Time) (store.Stats, error)
	Trend(ctx context.Context, now time.Time, days int) ([]store.DayPoint, error)
	TopCharacteristics(ctx context.Context, limit int) (store.TopCharacteristics, error)
}

// Dashboard is the admin summary payload.
type Dashboard struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Stats       store.Stats              `json:"stats"`
	StatusLabel map[store.Status]string  `json:"status_labels"`
	Trend       []store.DayPoint         `json:"trend"`
	Top         store.TopCharacteristics `json:"top"`
}

const topLimit = 5

// BuildDashboard gathers stats, the trend over days and the top characteristics.
func BuildDashboard(ctx context.Context, src DashboardSource, now time.Time, days int) (Dashboard, error) {
	stats, err := src.Stats(ctx, now)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard stats: %w", err)
	}
	trend, err := src.Trend(ctx, now, days)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard trend: %w", err)
	}
	top, err := src.TopCharacteristics(ctx, topLimit)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard top characteristics: %w", err)
	}

	labels := make(map[store.Status]string, len(store.Statuses()))
	for _, s := range store.Statuses() {
		labels[s] = s.Label()
	}
	return Dashboard{
		GeneratedAt: now,
		Stats:       stats,
		StatusLabel: labels,
		Trend:       trend,
		Top:         top,
	}, nil
}
