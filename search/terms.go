package search

import (
	"strings"
	"sync"
	"unicode/utf8"
)

const stopwordList = "about,an,are,as,at,be,by,com,for,from,how,in,is,it,of,on,or,that,the,this,to,was,what,when,where,who,will,with,www"

var stopwords = sync.OnceValue(func() map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Split(stopwordList, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words[w] = true
		}
	}
	return words
})

// Tokenize splits raw on whitespace. The untouched string leads the result so
// it can match as an exact phrase; repeats are dropped.
func Tokenize(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	seen := map[string]bool{raw: true}
	out := []string{raw}
	for _, f := range strings.Fields(raw) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Filter strips quotes and drops single letters and stopwords.
func Filter(terms []string) []string {
	var out []string
	for _, term := range terms {
		if len(term) > 2 && term[0] == '"' && term[len(term)-1] == '"' {
			term = strings.Trim(term, `"'`)
		} else {
			term = strings.Trim(term, `"' `)
		}
		if term == "" || isSingleLetter(term) {
			continue
		}
		if stopwords()[strings.ToLower(term)] {
			continue
		}
		out = append(out, term)
	}
	return out
}

func isSingleLetter(s string) bool {
	if len(s) != 1 {
		return false
	}
	c := s[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// Partition splits terms into those the full-text index keeps and the short
// ones it drops.
func Partition(terms []string) (long, short []string) {
	for _, t := range terms {
		if utf8.RuneCountInString(t) > 3 {
			long = append(long, t)
		} else {
			short = append(short, t)
		}
	}
	return long, short
}
