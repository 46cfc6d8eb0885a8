package intake

import (
	"errors"
	"fmt"
	"strings"
)

var errPhone = errors.New("phone must be a Russian mobile number")

// NormalizePhone reduces raw input to digits and formats it as
// +7 (XXX) XXX-XX-XX. Ten digits get the country code prepended; a leading 8
// is the domestic trunk prefix and becomes 7.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		digits = "7" + digits
	case len(digits) == 11 && digits[0] == '8':
		digits = "7" + digits[1:]
	}
	if len(digits) != 11 || digits[0] != '7' {
		return "", errPhone
	}
	return fmt.Sprintf("+7 (%s) %s-%s-%s", digits[1:4], digits[4:7], digits[7:9], digits[9:11]), nil
}
