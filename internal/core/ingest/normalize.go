package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	removeRE     = regexp.MustCompile(`[^0-9a-zA-Z가-힣]+`)
)

// NormalizeName canonicalizes a free-text proper noun (company, job) into a
// stable lookup key: NFKC normalize, trim, collapse whitespace, lowercase,
// strip everything but ASCII letters, digits and Hangul syllables, then drop
// remaining whitespace.
//
//	"  LG  CNS  "   -> "lgcns"
//	"한화 비전(주)"  -> "한화비전주"
//
// An empty result means the name has no normalizable identity; callers skip
// the upsert and leave the foreign key unset.
func NormalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = strings.TrimSpace(s)
	s = whitespaceRE.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	s = removeRE.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, " ", "")
}
