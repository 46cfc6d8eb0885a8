package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hairbuy/intake/internal/pricing"
)

// ListOverrides returns every stored base-amount override.
func (s *Store) ListOverrides(ctx context.Context) ([]pricing.Override, error) {
	return listOverrides(ctx, s.db)
}

func listOverrides(ctx context.Context, runner sq.BaseRunner) ([]pricing.Override, error) {
	rows, err := sq.Select("length_band", "color", "amount").
		From("price_overrides").
		OrderBy("length_band", "color").
		RunWith(runner).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list price overrides: %w", err)
	}
	defer rows.Close()

	var out []pricing.Override
	for rows.Next() {
		var band, color string
		var o pricing.Override
		if err := rows.Scan(&band, &color, &o.Amount); err != nil {
			return nil, fmt.Errorf("scan price override: %w", err)
		}
		o.Band = pricing.Band(band)
		o.Color = pricing.Color(color)
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertOverride stores or replaces the override for one cell. Callers validate
// the resulting table before saving.
func (s *Store) UpsertOverride(ctx context.Context, o pricing.Override) error {
	return upsertOverride(ctx, s.db, o, s.now())
}

func upsertOverride(ctx context.Context, runner sq.BaseRunner, o pricing.Override, now time.Time) error {
	_, err := sq.Insert("price_overrides").
		Columns("length_band", "color", "amount", "updated_at").
		Values(string(o.Band), string(o.Color), o.Amount, formatTime(now)).
		Suffix("ON CONFLICT (length_band, color) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at").
		RunWith(runner).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert price override %s/%s: %w", o.Band, o.Color, err)
	}
	return nil
}

// DeleteOverride removes the override for one cell, restoring the table value.
func (s *Store) DeleteOverride(ctx context.Context, band pricing.Band, color pricing.Color) error {
	return deleteOverride(ctx, s.db, band, color)
}

func deleteOverride(ctx context.Context, runner sq.BaseRunner, band pricing.Band, color pricing.Color) error {
	res, err := sq.Delete("price_overrides").
		Where(sq.Eq{"length_band": string(band), "color": string(color)}).
		RunWith(runner).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete price override %s/%s: %w", band, color, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete price override %s/%s: %w", band, color, err)
	}
	if n == 0 {
		return fmt.Errorf("price override %s/%s: %w", band, color, ErrNotFound)
	}
	return nil
}

// EditOverrides replaces the stored override set inside one transaction.
// edit receives the overrides as currently stored and returns the set to
// keep; an error from edit rolls back without writing. Cells whose amount is
// unchanged keep their updated_at.
func (s *Store) EditOverrides(ctx context.Context, edit func(current []pricing.Override) ([]pricing.Override, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin override transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := listOverrides(ctx, tx)
	if err != nil {
		return err
	}
	next, err := edit(current)
	if err != nil {
		return err
	}

	kept := make(map[pricing.Cell]int64, len(next))
	for _, o := range next {
		kept[pricing.Cell{Band: o.Band, Color: o.Color}] = o.Amount
	}
	stored := make(map[pricing.Cell]int64, len(current))
	for _, o := range current {
		cell := pricing.Cell{Band: o.Band, Color: o.Color}
		stored[cell] = o.Amount
		if _, ok := kept[cell]; !ok {
			if err := deleteOverride(ctx, tx, o.Band, o.Color); err != nil {
				return err
			}
		}
	}
	now := s.now()
	for _, o := range next {
		if amount, ok := stored[pricing.Cell{Band: o.Band, Color: o.Color}]; ok && amount == o.Amount {
			continue
		}
		if err := upsertOverride(ctx, tx, o, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit override transaction: %w", err)
	}
	return nil
}
