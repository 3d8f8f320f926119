package guide

import "golang.org/x/text/cases"

// Fold applies Unicode case folding, the normalization used for search
// matching and user-visible sorting. A fresh caser per call: cases.Caser is
// stateful and not safe for concurrent use.
func Fold(s string) string {
	return cases.Fold().String(s)
}
