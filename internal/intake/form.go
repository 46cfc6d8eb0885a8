package intake

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hairbuy/intake/internal/pricing"
)

// Form is the raw public submission. Length accepts centimeters or a band.
type Form struct {
	Name      string `form:"name" validate:"required,min=2,max=100"`
	Phone     string `form:"phone" validate:"required,ru_phone"`
	Email     string `form:"email" validate:"omitempty,email,max=254"`
	City      string `form:"city" validate:"max=100"`
	Comment   string `form:"comment" validate:"max=2000"`
	Length    string `form:"length" validate:"required,hair_length"`
	Color     string `form:"color" validate:"required,hair_color"`
	Structure string `form:"structure" validate:"required,hair_structure"`
	Condition string `form:"condition" validate:"required,hair_condition"`
	Age       string `form:"age" validate:"omitempty,hair_age"`

	Photos []PhotoMeta `form:"-" validate:"-"`
}

// Submission is a validated, normalized form ready for pricing and storage.
type Submission struct {
	Name    string
	Phone   string
	Email   string
	City    string
	Comment string

	Length    pricing.Length
	Color     pricing.Color
	Structure pricing.Structure
	Condition pricing.Condition
	Age       pricing.Age

	Photos []PhotoMeta
}

// PricingInput returns the engine input for the submission.
func (s Submission) PricingInput() pricing.Input {
	return pricing.Input{
		Length:    s.Length,
		Color:     string(s.Color),
		Structure: string(s.Structure),
		Condition: string(s.Condition),
		Age:       string(s.Age),
	}
}

// ValidationErrors maps a form field to a message for the submitter.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

// IsValidation reports whether err carries field-level validation errors.
func IsValidation(err error) bool {
	var v ValidationErrors
	return errors.As(err, &v)
}

// Validator normalizes public submissions. It is safe for concurrent use.
type Validator struct {
	validate      *validator.Validate
	strip         *bluemonday.Policy
	maxPhotoBytes int64
}

// NewValidator builds a validator. maxPhotoBytes <= 0 means DefaultMaxPhoto.
func NewValidator(maxPhotoBytes int64) *Validator {
	if maxPhotoBytes <= 0 {
		maxPhotoBytes = DefaultMaxPhoto
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("ru_phone", func(fl validator.FieldLevel) bool {
		_, err := NormalizePhone(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("hair_length", func(fl validator.FieldLevel) bool {
		l, err := pricing.ParseLength(fl.Field().String())
		if err != nil {
			return false
		}
		cm, ok := l.CM()
		return !ok || cm > 0
	})
	_ = v.RegisterValidation("hair_color", func(fl validator.FieldLevel) bool {
		_, ok := pricing.NormalizeColor(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("hair_structure", func(fl validator.FieldLevel) bool {
		_, ok := pricing.NormalizeStructure(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("hair_condition", func(fl validator.FieldLevel) bool {
		_, ok := pricing.NormalizeCondition(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("hair_age", func(fl validator.FieldLevel) bool {
		_, ok := pricing.NormalizeAge(fl.Field().String())
		return ok
	})

	return &Validator{validate: v, strip: bluemonday.StrictPolicy(), maxPhotoBytes: maxPhotoBytes}
}

// Normalize validates f and returns the cleaned submission. Every problem is
// reported at once as ValidationErrors.
func (v *Validator) Normalize(f Form) (Submission, error) {
	f.Name = v.clean(f.Name)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.City = v.clean(f.City)
	f.Comment = v.cleanMultiline(f.Comment)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Length = strings.TrimSpace(f.Length)

	errs := ValidationErrors{}
	if err := v.validate.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Submission{}, fmt.Errorf("validate form: %w", err)
		}
		for _, fe := range fieldErrs {
			errs[fe.Field()] = message(fe)
		}
	}
	photos := v.checkPhotos(f.Photos, errs)
	if len(errs) > 0 {
		return Submission{}, errs
	}

	phone, _ := NormalizePhone(f.Phone)
	length, _ := pricing.ParseLength(f.Length)
	color, _ := pricing.NormalizeColor(f.Color)
	structure, _ := pricing.NormalizeStructure(f.Structure)
	condition, _ := pricing.NormalizeCondition(f.Condition)
	age, _ := pricing.NormalizeAge(f.Age)

	return Submission{
		Name:      f.Name,
		Phone:     phone,
		Email:     f.Email,
		City:      f.City,
		Comment:   f.Comment,
		Length:    length,
		Color:     color,
		Structure: structure,
		Condition: condition,
		Age:       age,
		Photos:    photos,
	}, nil
}

func (v *Validator) checkPhotos(in []PhotoMeta, errs ValidationErrors) []PhotoMeta {
	var out []PhotoMeta
	for _, p := range in {
		if p.Size == 0 && len(p.Head) == 0 {
			continue
		}
		field := p.Field
		if field == "" {
			field = fmt.Sprintf("photo%d", len(out)+1)
		}
		if p.Size > v.maxPhotoBytes {
			errs[field] = fmt.Sprintf("Файл больше %d МБ", v.maxPhotoBytes>>20)
			continue
		}
		ext, ok := DetectPhoto(p.Head)
		if !ok {
			errs[field] = "Допустимы только фотографии JPEG, PNG, WebP или HEIC"
			continue
		}
		p.Field = field
		p.Ext = ext
		out = append(out, p)
	}
	if len(out) > MaxPhotos {
		errs["photos"] = fmt.Sprintf("Можно загрузить не более %d фотографий", MaxPhotos)
	}
	if _, ok := errs["photo1"]; !ok && !hasPhoto1(in) {
		errs["photo1"] = "Загрузите хотя бы одну фотографию"
	}
	return out
}

func hasPhoto1(in []PhotoMeta) bool {
	for i, p := range in {
		if p.Size == 0 && len(p.Head) == 0 {
			continue
		}
		if p.Field == "photo1" || (p.Field == "" && i == 0) {
			return true
		}
	}
	return false
}

// clean strips markup and collapses whitespace. The policy escapes entities,
// which are undone here because values are stored as plain text.
func (v *Validator) clean(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(v.strip.Sanitize(s))), " ")
}

func (v *Validator) cleanMultiline(s string) string {
	lines := strings.Split(html.UnescapeString(v.strip.Sanitize(s)), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Обязательное поле"
	case "min":
		return fmt.Sprintf("Не короче %s символов", fe.Param())
	case "max":
		return fmt.Sprintf("Не длиннее %s символов", fe.Param())
	case "email":
		return "Некорректный адрес электронной почты"
	case "ru_phone":
		return "Введите номер в формате +7 (XXX) XXX-XX-XX"
	case "hair_length":
		return "Укажите длину в сантиметрах или выберите диапазон"
	case "hair_color", "hair_structure", "hair_condition", "hair_age":
		return "Выберите значение из списка"
	}
	return "Некорректное значение"
}
