package pricing

import (
	"errors"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Input is a set of hair characteristics to price. Categorical fields are raw
// strings; they are normalized by the engine.
type Input struct {
	Length    Length
	Color     string
	Structure string
	Condition string
	Age       string
}

// Fallback records a categorical field that did not normalize and the default
// substituted for it.
type Fallback struct {
	Field   string
	Value   string
	Default string
}

// Quote is the engine's answer for one input.
type Quote struct {
	Amount    int64
	Min       int64
	Max       int64
	Currency  string
	Band      Band
	Color     Color
	Structure Structure
	Condition Condition
	Age       Age
	Fallbacks []Fallback
}

// Engine prices inputs against one table snapshot. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	table *Table
}

// NewEngine binds an engine to table. A nil table means DefaultTable.
func NewEngine(table *Table) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	return &Engine{table: table}
}

// Table returns the snapshot the engine prices against.
func (e *Engine) Table() *Table { return e.table }

// Compute returns the quote for in, including the min/max range for its
// length band and color. The only error is ErrInvalidInput for a length that
// was not built through a constructor.
func (e *Engine) Compute(in Input) (Quote, error) {
	if !in.Length.Valid() {
		return Quote{}, &InvalidInputError{Field: "length", Value: in.Length}
	}

	q := Quote{Currency: e.table.currency, Band: in.Length.Band()}

	var ok bool
	if q.Color, ok = NormalizeColor(in.Color); !ok {
		q.Fallbacks = append(q.Fallbacks, Fallback{Field: "color", Value: in.Color, Default: string(q.Color)})
	}
	if q.Structure, ok = NormalizeStructure(in.Structure); !ok {
		q.Fallbacks = append(q.Fallbacks, Fallback{Field: "structure", Value: in.Structure, Default: string(q.Structure)})
	}
	if q.Condition, ok = NormalizeCondition(in.Condition); !ok {
		q.Fallbacks = append(q.Fallbacks, Fallback{Field: "condition", Value: in.Condition, Default: string(q.Condition)})
	}
	if q.Age, ok = NormalizeAge(in.Age); !ok {
		q.Fallbacks = append(q.Fallbacks, Fallback{Field: "age", Value: in.Age, Default: string(q.Age)})
	}

	amount, err := e.amount(q.Band, q.Color, q.Structure, q.Condition, q.Age)
	if err != nil {
		return Quote{}, err
	}
	q.Amount = amount
	q.Min, q.Max = e.span(q.Band, q.Color, q.Age, amount)
	return q, nil
}

// Range is Compute for callers that only display the min/max span.
func (e *Engine) Range(in Input) (Quote, error) {
	return e.Compute(in)
}

// Price returns the amount for already-normalized characteristics. It is what
// the reporting surface uses to render every cell of the table.
func (e *Engine) Price(band Band, color Color, s Structure, c Condition, a Age) (int64, error) {
	return e.amount(band, color, s, c, a)
}

var errCellMissing = errors.New("pricing: table cell missing")

func (e *Engine) amount(band Band, color Color, s Structure, c Condition, a Age) (int64, error) {
	base, ok := e.table.Base(band, color)
	if !ok {
		return 0, errCellMissing
	}
	sf, ok := e.table.StructureFactor(s)
	if !ok {
		return 0, errCellMissing
	}
	cf, ok := e.table.ConditionFactor(c)
	if !ok {
		return 0, errCellMissing
	}
	af, ok := e.table.AgeFactor(a)
	if !ok {
		af = decimal.NewFromInt(1)
	}

	v := decimal.NewFromInt(base).Mul(sf).Mul(cf).Mul(af)
	// Round is half away from zero, which is half-up for the non-negative
	// amounts a validated table produces.
	rounded := v.Round(0).IntPart()
	if rounded < 0 {
		rounded = 0
	}
	return rounded, nil
}

// span walks every structure x condition combination for the cell. When none
// can be priced the span collapses to the estimate.
func (e *Engine) span(band Band, color Color, a Age, estimate int64) (lo, hi int64) {
	found := false
	for _, s := range Structures() {
		for _, c := range Conditions() {
			v, err := e.amount(band, color, s, c, a)
			if err != nil {
				continue
			}
			if !found {
				lo, hi, found = v, v, true
				continue
			}
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	if !found {
		return estimate, estimate
	}
	return lo, hi
}

// Provider publishes table snapshots to concurrent readers. Swapping installs a
// new snapshot; engines already handed out keep pricing against the old one.
type Provider struct {
	current atomic.Pointer[Table]
}

// NewProvider starts with table, or DefaultTable when nil.
func NewProvider(table *Table) *Provider {
	if table == nil {
		table = DefaultTable()
	}
	p := &Provider{}
	p.current.Store(table)
	return p
}

// Table returns the current snapshot.
func (p *Provider) Table() *Table { return p.current.Load() }

// Engine returns an engine bound to the current snapshot.
func (p *Provider) Engine() *Engine { return NewEngine(p.current.Load()) }

// Swap installs table as the current snapshot.
func (p *Provider) Swap(table *Table) {
	if table != nil {
		p.current.Store(table)
	}
}
