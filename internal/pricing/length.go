package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidInput signals a structurally wrong length: neither a whole number of
// centimeters nor a known band string.
var ErrInvalidInput = errors.New("pricing: invalid input")

// InvalidInputError carries the offending field and value.
type InvalidInputError struct {
	Field string
	Value any
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("pricing: invalid %s: %v", e.Field, e.Value)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Band is one of the five fixed length ranges used as the first table key.
type Band string

const (
	Band40to50    Band = "40-50"
	Band50to60    Band = "50-60"
	Band60to80    Band = "60-80"
	Band80to100   Band = "80-100"
	Band100OrMore Band = "100+"
)

const (
	MinLengthCM = 40
	MaxLengthCM = 150
)

// Bands lists the length bands shortest first.
func Bands() []Band {
	return []Band{Band40to50, Band50to60, Band60to80, Band80to100, Band100OrMore}
}

// Label returns the customer-facing name of the band.
func (b Band) Label() string {
	if b == Band100OrMore {
		return "Более 100 см"
	}
	return string(b) + " см"
}

// bandAliases maps band strings, including the narrower bands older forms
// submitted, onto the canonical bands.
var bandAliases = map[string]Band{
	"40-50":   Band40to50,
	"50-60":   Band50to60,
	"60-80":   Band60to80,
	"60-70":   Band60to80,
	"70-80":   Band60to80,
	"80-100":  Band80to100,
	"80-90":   Band80to100,
	"90-100":  Band80to100,
	"100+":    Band100OrMore,
	"100-150": Band100OrMore,
	">100":    Band100OrMore,
}

// BandForCM clamps cm into [MinLengthCM, MaxLengthCM] and returns the band whose
// half-open interval contains it. 150 belongs to 100+.
func BandForCM(cm int) Band {
	cm = ClampCM(cm)
	switch {
	case cm < 50:
		return Band40to50
	case cm < 60:
		return Band50to60
	case cm < 80:
		return Band60to80
	case cm < 100:
		return Band80to100
	default:
		return Band100OrMore
	}
}

// ClampCM bounds a centimeter value to the priced domain.
func ClampCM(cm int) int {
	if cm < MinLengthCM {
		return MinLengthCM
	}
	if cm > MaxLengthCM {
		return MaxLengthCM
	}
	return cm
}

// ParseBand resolves a band string. The second result is false for unknown bands.
func ParseBand(raw string) (Band, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	key = strings.TrimSuffix(key, "см")
	key = strings.TrimSuffix(key, "cm")
	b, ok := bandAliases[key]
	return b, ok
}

// Length is a hair length given either in centimeters or as a band. The zero
// value is not a valid length.
type Length struct {
	cm    int
	band  Band
	hasCM bool
}

// LengthCM builds a length from centimeters. Out-of-domain values are clamped
// when the band is resolved, not here.
func LengthCM(cm int) Length {
	return Length{cm: cm, band: BandForCM(cm), hasCM: true}
}

// LengthBand builds a length from a band string.
func LengthBand(raw string) (Length, error) {
	b, ok := ParseBand(raw)
	if !ok {
		return Length{}, &InvalidInputError{Field: "length", Value: raw}
	}
	return Length{band: b}, nil
}

// ParseLength accepts whatever a decoder produced for the length field: integer
// kinds, integral floats, json.Number, numeric strings or band strings.
func ParseLength(v any) (Length, error) {
	switch t := v.(type) {
	case Length:
		if !t.Valid() {
			return Length{}, &InvalidInputError{Field: "length", Value: v}
		}
		return t, nil
	case int:
		return LengthCM(t), nil
	case int32:
		return LengthCM(int(t)), nil
	case int64:
		return lengthFromInt64(t), nil
	case uint:
		return lengthFromInt64(int64(min(t, math.MaxInt32))), nil
	case float64:
		return lengthFromFloat(t, v)
	case float32:
		return lengthFromFloat(float64(t), v)
	case json.Number:
		return ParseLength(string(t))
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return lengthFromInt64(n), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return lengthFromFloat(f, v)
		}
		return LengthBand(s)
	}
	return Length{}, &InvalidInputError{Field: "length", Value: v}
}

func lengthFromInt64(n int64) Length {
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	if n < math.MinInt32 {
		n = math.MinInt32
	}
	return LengthCM(int(n))
}

func lengthFromFloat(f float64, orig any) (Length, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Length{}, &InvalidInputError{Field: "length", Value: orig}
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	if f < math.MinInt32 {
		f = math.MinInt32
	}
	return LengthCM(int(f)), nil
}

// Valid reports whether the length was built through one of the constructors.
func (l Length) Valid() bool { return l.band != "" }

// Band returns the resolved band.
func (l Length) Band() Band { return l.band }

// CM returns the centimeter value as supplied, if any.
func (l Length) CM() (int, bool) { return l.cm, l.hasCM }

func (l Length) String() string {
	if l.hasCM {
		return strconv.Itoa(l.cm)
	}
	return string(l.band)
}
