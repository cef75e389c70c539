package discovery

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName applies NFKC and collapses whitespace runs.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}

// NormalizeID derives a candidate identity from a product name, so titles
// that differ only in case, width, or spacing collapse to one candidate.
func NormalizeID(name string) string {
	return cases.Fold().String(NormalizeName(name))
}
