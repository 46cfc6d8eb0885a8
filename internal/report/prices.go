package report

import (
	"fmt"

	"github.com/hairbuy/intake/internal/pricing"
)

// PriceRow is one fully-specified combination and its price for adult hair.
type PriceRow struct {
	Band      pricing.Band      `json:"length"`
	Color     pricing.Color     `json:"color"`
	Structure pricing.Structure `json:"structure"`
	Condition pricing.Condition `json:"condition"`
	Amount    int64             `json:"amount"`
}

// PriceRange is the span shown for a length band and color.
type PriceRange struct {
	Band  pricing.Band  `json:"length"`
	Color pricing.Color `json:"color"`
	Min   int64         `json:"min"`
	Max   int64         `json:"max"`
}

// PriceGrid evaluates every band x color x structure x condition through the engine.
func PriceGrid(engine *pricing.Engine) ([]PriceRow, error) {
	var rows []PriceRow
	for _, band := range pricing.Bands() {
		for _, color := range pricing.Colors() {
			for _, s := range pricing.Structures() {
				for _, c := range pricing.Conditions() {
					amount, err := engine.Price(band, color, s, c, pricing.AgeAdult)
					if err != nil {
						return nil, fmt.Errorf("price %s/%s/%s/%s: %w", band, color, s, c, err)
					}
					rows = append(rows, PriceRow{Band: band, Color: color, Structure: s, Condition: c, Amount: amount})
				}
			}
		}
	}
	return rows, nil
}

// PriceRanges returns the quote range for each band and color.
func PriceRanges(engine *pricing.Engine) ([]PriceRange, error) {
	var out []PriceRange
	for _, band := range pricing.Bands() {
		length, err := pricing.LengthBand(string(band))
		if err != nil {
			return nil, err
		}
		for _, color := range pricing.Colors() {
			q, err := engine.Range(pricing.Input{Length: length, Color: string(color)})
			if err != nil {
				return nil, fmt.Errorf("range %s/%s: %w", band, color, err)
			}
			out = append(out, PriceRange{Band: band, Color: color, Min: q.Min, Max: q.Max})
		}
	}
	return out, nil
}
