package geocode

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	parenthesised = regexp.MustCompile(`[(（][^)）]*[)）]`)
	zeroSubLot    = regexp.MustCompile(`^(\d+)-0+$`)
	unitToken     = regexp.MustCompile(`^(지하)?\d+(층|호)$|^[Bb]\d+(층)?$|^\d+-\d+호$`)
)

// CleanAddress prepares a stored address for a geocoding query. It applies
// NFC normalization, drops parenthesised notes, trims trailing floor and unit
// tokens such as "3층", "201호" or "B1", turns a "-0" sub-lot into the bare
// main lot, removes an immediately repeated token and collapses whitespace.
func CleanAddress(address string) string {
	s := norm.NFC.String(address)
	s = parenthesised.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if m := zeroSubLot.FindStringSubmatch(f); m != nil {
			f = m[1]
		}
		if n := len(out); n > 0 && out[n-1] == f {
			continue
		}
		out = append(out, f)
	}

	for len(out) > 1 && unitToken.MatchString(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return strings.Join(out, " ")
}
