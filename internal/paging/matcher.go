package paging

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultSuffixes are the special location suffixes, as in "Central Media New"
var DefaultSuffixes = []string{"New"}

// anyBranch stands in for a single-word branch name that is not configured
const anyBranch = `\w+`

// Locations is the immutable set of names the matcher is built from
type Locations struct {
	Branches     []string
	Sublocations []string
	Suffixes     []string
}

// Matcher recognizes the location phrase that opens the first line of a record block
type Matcher struct {
	alternation string
	prefix      *regexp.Regexp
	header      *regexp.Regexp
	fallback    *regexp.Regexp
}

// NewMatcher builds the candidate phrases for locs, ordered longest first so that
// multi-word names win over the shorter names they contain.
func NewMatcher(locs Locations) *Matcher {
	suffixes := locs.Suffixes
	if suffixes == nil {
		suffixes = DefaultSuffixes
	}

	branches := make([]string, 0, len(locs.Branches)+1)
	for _, b := range cleanNames(locs.Branches) {
		branches = append(branches, phrase(b))
	}
	branches = append(branches, anyBranch)
	subs := cleanNames(locs.Sublocations)
	suffixes = cleanNames(suffixes)

	var candidates []string
	for _, b := range branches {
		candidates = append(candidates, b)
		for _, suf := range suffixes {
			candidates = append(candidates, b+`\ `+phrase(suf))
		}
		for _, sub := range subs {
			candidates = append(candidates, b+`\ `+phrase(sub))
			for _, suf := range suffixes {
				candidates = append(candidates, b+`\ `+phrase(sub)+`\ `+phrase(suf))
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	alt := strings.Join(candidates, "|")
	return &Matcher{
		alternation: alt,
		prefix:      regexp.MustCompile(`^(?:` + alt + `)`),
		header:      regexp.MustCompile(`^(` + alt + `)(.*?)([\s.]b(\d+).)$`),
		fallback:    regexp.MustCompile(`^(\S+)\s*(.*)$`),
	}
}

// Match returns the longest known location phrase at the start of line, or ""
func (m *Matcher) Match(line string) string {
	return m.prefix.FindString(strings.TrimSpace(line))
}

// SplitHeader splits a block's first line into location, call number and bib number.
// Fields that cannot be found come back empty.
func (m *Matcher) SplitHeader(line string) (location, callNumber, bibNumber string) {
	line = strings.TrimSpace(line)

	if g := m.header.FindStringSubmatch(line); g != nil {
		return g[1], strings.TrimSpace(g[2]), g[4]
	}

	// no bib suffix: keep the leading token as location and the rest as call number
	if g := m.fallback.FindStringSubmatch(line); g != nil {
		return g[1], strings.TrimSpace(g[2]), ""
	}
	return "", "", ""
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// phrase escapes a name for use inside the alternation, spaces included
func phrase(name string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(name), " ", `\ `)
}
