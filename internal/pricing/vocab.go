package pricing

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Color is the closed palette used as the second table key, ordered lightest to darkest.
type Color string

const (
	ColorBlonde      Color = "blonde"
	ColorLightBrown  Color = "light-brown"
	ColorMediumBrown Color = "medium-brown"
	ColorDarkBrown   Color = "dark-brown"
	ColorChestnut    Color = "chestnut"
	ColorBlack       Color = "black"
)

// Structure is the quality tier of the hair. Slavic is the top tier.
type Structure string

const (
	StructureSlavic  Structure = "slavic"
	StructureAverage Structure = "average"
	StructureThick   Structure = "thick"
)

// Condition is the treatment state of the hair. Natural is the top tier.
type Condition string

const (
	ConditionNatural  Condition = "natural"
	ConditionDyed     Condition = "dyed"
	ConditionChemical Condition = "chemical"
)

// Age is the demographic band the hair was sourced from.
type Age string

const (
	AgeAdult Age = "adult"
	AgeChild Age = "child"
)

// Defaults substituted for unrecognized categorical input.
const (
	DefaultColor     = ColorBlonde
	DefaultStructure = StructureAverage
	DefaultCondition = ConditionNatural
	DefaultAge       = AgeAdult
)

// Colors lists the palette lightest first.
func Colors() []Color {
	return []Color{ColorBlonde, ColorLightBrown, ColorMediumBrown, ColorDarkBrown, ColorChestnut, ColorBlack}
}

// Structures lists quality tiers best first.
func Structures() []Structure {
	return []Structure{StructureSlavic, StructureAverage, StructureThick}
}

// Conditions lists treatment states best first.
func Conditions() []Condition {
	return []Condition{ConditionNatural, ConditionDyed, ConditionChemical}
}

// Ages lists the accepted age bands.
func Ages() []Age {
	return []Age{AgeAdult, AgeChild}
}

var colorAliases = map[string]Color{
	"blonde":       ColorBlonde,
	"blond":        ColorBlonde,
	"блонд":        ColorBlonde,
	"светлые":      ColorBlonde,
	"light-brown":  ColorLightBrown,
	"light":        ColorLightBrown,
	"dark-blonde":  ColorLightBrown,
	"светло-русые": ColorLightBrown,
	"medium-brown": ColorMediumBrown,
	"medium":       ColorMediumBrown,
	"brown":        ColorChestnut,
	"русые":        ColorMediumBrown,
	"dark-brown":   ColorDarkBrown,
	"dark":         ColorDarkBrown,
	"темно-русые":  ColorDarkBrown,
	"chestnut":     ColorChestnut,
	"каштановые":   ColorChestnut,
	"темные":       ColorChestnut,
	"black":        ColorBlack,
	"черные":       ColorBlack,
}

var structureAliases = map[string]Structure{
	"slavic":    StructureSlavic,
	"slavyanka": StructureSlavic,
	"thin":      StructureSlavic,
	"fine":      StructureSlavic,
	"славянка":  StructureSlavic,
	"тонкие":    StructureSlavic,
	"average":   StructureAverage,
	"medium":    StructureAverage,
	"european":  StructureAverage,
	"среднее":   StructureAverage,
	"средние":   StructureAverage,
	"thick":     StructureThick,
	"coarse":    StructureThick,
	"asian":     StructureThick,
	"curly":     StructureThick,
	"густые":    StructureThick,
	"вьющиеся":  StructureThick,
}

var conditionAliases = map[string]Condition{
	"natural":      ConditionNatural,
	"virgin":       ConditionNatural,
	"excellent":    ConditionNatural,
	"натуральные":  ConditionNatural,
	"dyed":         ConditionDyed,
	"colored":      ConditionDyed,
	"good":         ConditionDyed,
	"окрашенные":   ConditionDyed,
	"chemical":     ConditionChemical,
	"perm":         ConditionChemical,
	"permed":       ConditionChemical,
	"processed":    ConditionChemical,
	"fair":         ConditionChemical,
	"после-химии":  ConditionChemical,
	"химия":        ConditionChemical,
}

var ageAliases = map[string]Age{
	"adult":    AgeAdult,
	"взрослые": AgeAdult,
	"child":    AgeChild,
	"children": AgeChild,
	"детские":  AgeChild,
}

// vocabKey canonicalises free-form categorical input: NFC, case folded, ё→е,
// and any run of spaces or underscores collapsed into a single hyphen.
// A Caser is stateful, so one is built per call.
func vocabKey(raw string) string {
	s := cases.Fold().String(norm.NFC.String(strings.TrimSpace(raw)))
	s = strings.ReplaceAll(s, "ё", "е")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	})
	return strings.Join(fields, "-")
}

// NormalizeColor maps raw input onto the palette. The boolean is false when the
// default was substituted.
func NormalizeColor(raw string) (Color, bool) {
	if c, ok := colorAliases[vocabKey(raw)]; ok {
		return c, true
	}
	return DefaultColor, false
}

// NormalizeStructure maps raw input onto a quality tier.
func NormalizeStructure(raw string) (Structure, bool) {
	if s, ok := structureAliases[vocabKey(raw)]; ok {
		return s, true
	}
	return DefaultStructure, false
}

// NormalizeCondition maps raw input onto a treatment state.
func NormalizeCondition(raw string) (Condition, bool) {
	if c, ok := conditionAliases[vocabKey(raw)]; ok {
		return c, true
	}
	return DefaultCondition, false
}

// NormalizeAge maps raw input onto an age band. Age is optional, so blank
// input is the adult default rather than a fallback.
func NormalizeAge(raw string) (Age, bool) {
	if strings.TrimSpace(raw) == "" {
		return DefaultAge, true
	}
	if a, ok := ageAliases[vocabKey(raw)]; ok {
		return a, true
	}
	return DefaultAge, false
}

// Label returns the customer-facing name.
func (c Color) Label() string {
	switch c {
	case ColorBlonde:
		return "Блонд"
	case ColorLightBrown:
		return "Светло-русые"
	case ColorMediumBrown:
		return "Русые"
	case ColorDarkBrown:
		return "Темно-русые"
	case ColorChestnut:
		return "Каштановые"
	case ColorBlack:
		return "Черные"
	}
	return string(c)
}

func (s Structure) Label() string {
	switch s {
	case StructureSlavic:
		return "Славянка (тонкие)"
	case StructureAverage:
		return "Средние"
	case StructureThick:
		return "Густые"
	}
	return string(s)
}

func (c Condition) Label() string {
	switch c {
	case ConditionNatural:
		return "Натуральные"
	case ConditionDyed:
		return "Окрашенные"
	case ConditionChemical:
		return "После химии"
	}
	return string(c)
}

func (a Age) Label() string {
	switch a {
	case AgeAdult:
		return "Взрослые"
	case AgeChild:
		return "Детские"
	}
	return string(a)
}
