package attendance

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxIDLength bounds every opaque identifier after normalization.
const MaxIDLength = 128

// NormalizeID trims and NFC-normalizes an opaque identifier so that
// visually identical ids compare equal. field names the offending input in
// the returned validation error.
func NormalizeID(field, id string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(id))
	if n == "" {
		return "", Invalid(field, "%s is required", field)
	}
	if len(n) > MaxIDLength {
		return "", Invalid(field, "%s exceeds %d bytes", field, MaxIDLength)
	}
	for _, r := range n {
		if unicode.IsControl(r) {
			return "", Invalid(field, "%s contains control characters", field)
		}
	}
	return n, nil
}
