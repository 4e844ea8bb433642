// Package resolve maps raw material references from arbitrary documents to
// canonical catalog records.
package resolve

import "github.com/smetacat/smetacat/internal/catalog"

// Normalize reduces a raw material name to its canonical lookup form. It is
// catalog.NormalizeName re-exported at the resolution boundary; both sides
// of an alias round-trip must run the exact same function.
func Normalize(name string) string {
	return catalog.NormalizeName(name)
}
