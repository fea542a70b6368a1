package csvload

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// header cleanup chain: compatibility forms, no format runes (stray BOMs, ZWSP), ASCII widths
var headerChain = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			runes.Remove(runes.In(unicode.Cf)),
			width.Fold,
		)
	},
}

// CleanHeader normalizes a header cell into a field name
func CleanHeader(s string) string {
	s = strings.ToValidUTF8(s, "")
	tr := headerChain.Get().(transform.Transformer)
	out, _, err := transform.String(tr, s)
	tr.Reset()
	headerChain.Put(tr)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}
