package pricing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const defaultCurrency = "RUB"

// Cell addresses one base amount in the table.
type Cell struct {
	Band  Band
	Color Color
}

// Table is the immutable reference data the engine prices against. Build it
// with DefaultTable, LoadTable or NewTable; derive variants with WithOverrides.
type Table struct {
	currency   string
	base       map[Cell]int64
	structures map[Structure]decimal.Decimal
	conditions map[Condition]decimal.Decimal
	ages       map[Age]decimal.Decimal
}

// TableSpec is the plain-data form of a table, as stored in YAML.
type TableSpec struct {
	Currency  string                      `yaml:"currency"`
	Base      map[string]map[string]int64 `yaml:"base"`
	Structure map[string]float64          `yaml:"structure"`
	Condition map[string]float64          `yaml:"condition"`
	Age       map[string]float64          `yaml:"age"`
}

// Override replaces the base amount of a single cell.
type Override struct {
	Band   Band
	Color  Color
	Amount int64
}

var defaultBase = map[Band][6]int64{
	// blonde, light-brown, medium-brown, dark-brown, chestnut, black
	Band40to50:    {25000, 23750, 22500, 22000, 21250, 20000},
	Band50to60:    {35000, 33250, 31500, 30800, 29750, 28000},
	Band60to80:    {45000, 42750, 40500, 39600, 38250, 36000},
	Band80to100:   {55000, 52250, 49500, 48400, 46750, 44000},
	Band100OrMore: {65000, 61750, 58500, 57200, 55250, 52000},
}

// DefaultTable returns the canonical price table.
func DefaultTable() *Table {
	t := &Table{
		currency: defaultCurrency,
		base:     make(map[Cell]int64, len(Bands())*len(Colors())),
		structures: map[Structure]decimal.Decimal{
			StructureSlavic:  decimal.NewFromInt(1),
			StructureAverage: decimal.RequireFromString("0.9"),
			StructureThick:   decimal.RequireFromString("0.8"),
		},
		conditions: map[Condition]decimal.Decimal{
			ConditionNatural:  decimal.NewFromInt(1),
			ConditionDyed:     decimal.RequireFromString("0.7"),
			ConditionChemical: decimal.RequireFromString("0.5"),
		},
		ages: map[Age]decimal.Decimal{
			AgeAdult: decimal.NewFromInt(1),
			AgeChild: decimal.NewFromInt(1),
		},
	}
	for band, row := range defaultBase {
		for i, color := range Colors() {
			t.base[Cell{Band: band, Color: color}] = row[i]
		}
	}
	return t
}

// LoadTable reads a YAML table spec. Keys omitted from the file keep their
// default values, so a file may carry only the cells it changes.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}

	var spec TableSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode price table: %w", err)
	}

	t, err := NewTable(spec)
	if err != nil {
		return nil, fmt.Errorf("price table %s: %w", path, err)
	}
	return t, nil
}

// BaseTable is the table before stored overrides: the YAML file at path when
// set, else the built-in one. A non-empty currency replaces the table's.
func BaseTable(path, currency string) (*Table, error) {
	t := DefaultTable()
	if path != "" {
		loaded, err := LoadTable(path)
		if err != nil {
			return nil, err
		}
		t = loaded
	}
	if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" && c != t.currency {
		t = t.clone()
		t.currency = c
	}
	return t, nil
}

// NewTable layers spec over the default table and validates the result. Keys
// must use canonical vocabulary; aliases are rejected so a typo cannot silently
// land on a default.
func NewTable(spec TableSpec) (*Table, error) {
	t := DefaultTable().clone()
	if c := strings.TrimSpace(spec.Currency); c != "" {
		t.currency = strings.ToUpper(c)
	}

	for rawBand, row := range spec.Base {
		band, ok := canonicalBand(rawBand)
		if !ok {
			return nil, fmt.Errorf("unknown length band %q", rawBand)
		}
		for rawColor, amount := range row {
			color, ok := canonicalColor(rawColor)
			if !ok {
				return nil, fmt.Errorf("unknown color %q", rawColor)
			}
			t.base[Cell{Band: band, Color: color}] = amount
		}
	}
	for raw, f := range spec.Structure {
		s := Structure(raw)
		if _, ok := t.structures[s]; !ok {
			return nil, fmt.Errorf("unknown structure %q", raw)
		}
		t.structures[s] = decimal.NewFromFloat(f)
	}
	for raw, f := range spec.Condition {
		c := Condition(raw)
		if _, ok := t.conditions[c]; !ok {
			return nil, fmt.Errorf("unknown condition %q", raw)
		}
		t.conditions[c] = decimal.NewFromFloat(f)
	}
	for raw, f := range spec.Age {
		a := Age(raw)
		if _, ok := t.ages[a]; !ok {
			return nil, fmt.Errorf("unknown age %q", raw)
		}
		t.ages[a] = decimal.NewFromFloat(f)
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// WithOverrides returns a copy of t with the given cells replaced. t is left
// untouched.
func (t *Table) WithOverrides(overrides []Override) (*Table, error) {
	next := t.clone()
	for _, o := range overrides {
		cell := Cell{Band: o.Band, Color: o.Color}
		if _, ok := next.base[cell]; !ok {
			return nil, fmt.Errorf("override %s/%s: unknown cell", o.Band, o.Color)
		}
		next.base[cell] = o.Amount
	}
	if err := next.validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// Currency returns the ISO code amounts are expressed in.
func (t *Table) Currency() string { return t.currency }

// Base returns the base amount for a cell.
func (t *Table) Base(band Band, color Color) (int64, bool) {
	v, ok := t.base[Cell{Band: band, Color: color}]
	return v, ok
}

// StructureFactor returns the multiplier for a quality tier.
func (t *Table) StructureFactor(s Structure) (decimal.Decimal, bool) {
	f, ok := t.structures[s]
	return f, ok
}

// ConditionFactor returns the multiplier for a treatment state.
func (t *Table) ConditionFactor(c Condition) (decimal.Decimal, bool) {
	f, ok := t.conditions[c]
	return f, ok
}

// AgeFactor returns the multiplier for an age band.
func (t *Table) AgeFactor(a Age) (decimal.Decimal, bool) {
	f, ok := t.ages[a]
	return f, ok
}

// Spec returns the plain-data form of the table.
func (t *Table) Spec() TableSpec {
	spec := TableSpec{
		Currency:  t.currency,
		Base:      make(map[string]map[string]int64, len(Bands())),
		Structure: make(map[string]float64, len(t.structures)),
		Condition: make(map[string]float64, len(t.conditions)),
		Age:       make(map[string]float64, len(t.ages)),
	}
	for cell, amount := range t.base {
		row, ok := spec.Base[string(cell.Band)]
		if !ok {
			row = make(map[string]int64, len(Colors()))
			spec.Base[string(cell.Band)] = row
		}
		row[string(cell.Color)] = amount
	}
	for s, f := range t.structures {
		spec.Structure[string(s)] = f.InexactFloat64()
	}
	for c, f := range t.conditions {
		spec.Condition[string(c)] = f.InexactFloat64()
	}
	for a, f := range t.ages {
		spec.Age[string(a)] = f.InexactFloat64()
	}
	return spec
}

func (t *Table) clone() *Table {
	next := &Table{
		currency:   t.currency,
		base:       make(map[Cell]int64, len(t.base)),
		structures: make(map[Structure]decimal.Decimal, len(t.structures)),
		conditions: make(map[Condition]decimal.Decimal, len(t.conditions)),
		ages:       make(map[Age]decimal.Decimal, len(t.ages)),
	}
	for k, v := range t.base {
		next.base[k] = v
	}
	for k, v := range t.structures {
		next.structures[k] = v
	}
	for k, v := range t.conditions {
		next.conditions[k] = v
	}
	for k, v := range t.ages {
		next.ages[k] = v
	}
	return next
}

var (
	errNegativeAmount = errors.New("base amount must not be negative")
	errFactorRange    = errors.New("factor must be in (0, 1]")
	errTopTier        = errors.New("top tier factor must be 1")
	errAgeFactor      = errors.New("age factor must be positive")
	errNotMonotonic   = errors.New("base amounts must not decrease with length or lightness")
)

func (t *Table) validate() error {
	for _, band := range Bands() {
		for _, color := range Colors() {
			amount, ok := t.base[Cell{Band: band, Color: color}]
			if !ok {
				return fmt.Errorf("missing base amount for %s/%s", band, color)
			}
			if amount < 0 {
				return fmt.Errorf("%s/%s: %w", band, color, errNegativeAmount)
			}
		}
	}
	if err := t.checkMonotonic(); err != nil {
		return err
	}

	one := decimal.NewFromInt(1)
	checkFactor := func(name string, f decimal.Decimal) error {
		if !f.IsPositive() || f.GreaterThan(one) {
			return fmt.Errorf("%s: %w", name, errFactorRange)
		}
		return nil
	}
	for s, f := range t.structures {
		if err := checkFactor("structure "+string(s), f); err != nil {
			return err
		}
	}
	for c, f := range t.conditions {
		if err := checkFactor("condition "+string(c), f); err != nil {
			return err
		}
	}
	for a, f := range t.ages {
		if !f.IsPositive() {
			return fmt.Errorf("age %s: %w", a, errAgeFactor)
		}
	}
	if !t.structures[StructureSlavic].Equal(one) {
		return fmt.Errorf("structure %s: %w", StructureSlavic, errTopTier)
	}
	if !t.conditions[ConditionNatural].Equal(one) {
		return fmt.Errorf("condition %s: %w", ConditionNatural, errTopTier)
	}
	return nil
}

// checkMonotonic enforces that a longer band never prices below a shorter one
// and a lighter color never prices below a darker one.
func (t *Table) checkMonotonic() error {
	bands, colors := Bands(), Colors()
	for i, band := range bands {
		for j, color := range colors {
			amount := t.base[Cell{Band: band, Color: color}]
			if i > 0 {
				if shorter := t.base[Cell{Band: bands[i-1], Color: color}]; amount < shorter {
					return fmt.Errorf("%s/%s below %s/%s: %w", band, color, bands[i-1], color, errNotMonotonic)
				}
			}
			if j > 0 {
				if lighter := t.base[Cell{Band: band, Color: colors[j-1]}]; amount > lighter {
					return fmt.Errorf("%s/%s above %s/%s: %w", band, color, band, colors[j-1], errNotMonotonic)
				}
			}
		}
	}
	return nil
}

func canonicalBand(raw string) (Band, bool) {
	for _, b := range Bands() {
		if string(b) == raw {
			return b, true
		}
	}
	return "", false
}

func canonicalColor(raw string) (Color, bool) {
	for _, c := range Colors() {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}
