package db

import (
	"fmt"
	"strings"
)

// VectorLiteral renders a vector as the textual pgvector literal
// "[v1,v2,...,vn]" with each component formatted to 8 decimal places. The
// format is a bit-exact boundary contract; query sites cast it with
// CAST($n AS vector).
func VectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.8f", v)
	}
	b.WriteByte(']')
	return b.String()
}
