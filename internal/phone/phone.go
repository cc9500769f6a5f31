package phone

import "strings"

// nationalDigits is the significant-digit length used when comparing
// numbers that may differ only by a leading country code.
const nationalDigits = 10

// Normalize strips every non-digit character from a phone string.
// Device contacts and server-stored numbers arrive in arbitrary
// formats ("+1 (202) 555-0101", "202-555-0101"); all comparisons and
// uniqueness checks operate on the normalized form.
func Normalize(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match reports whether two phone numbers refer to the same contact
// under the loose rule the mobile client ships: normalized forms are
// equal, or one contains the other. Containment tolerates an optional
// country-code prefix (1234567890 vs +11234567890) but can false-match
// very short numbers; user lookups in SQL compare Suffix values instead.
func Match(a, b string) bool {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// Suffix returns the trailing nationalDigits digits of a normalized
// number, or the whole normalized number when shorter. The database
// stores this alongside the full normalized form so dropping an optional
// country code becomes an index-friendly equality.
func Suffix(phone string) string {
	n := Normalize(phone)
	if len(n) <= nationalDigits {
		return n
	}
	return n[len(n)-nationalDigits:]
}
