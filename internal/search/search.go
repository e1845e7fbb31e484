// Package search scans exported session files for filter matches.
package search

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Filter is one search pattern. Word and CaseSensitive tune how the
// pattern is compiled.
type Filter struct {
	Value         string
	IsRegex       bool
	CaseSensitive bool
	Word          bool
}

// Match records one matching line and the filter indexes that hit it.
type Match struct {
	Line    int
	Filters []int
}

// Stats counts hits per filter index.
type Stats map[int]int

func compile(f Filter) (*regexp.Regexp, error) {
	value := f.Value
	if !f.IsRegex {
		value = regexp.QuoteMeta(value)
	}
	if f.Word {
		value = `\b` + value + `\b`
	}
	if !f.CaseSensitive {
		value = "(?i)" + value
	}
	re, err := regexp.Compile(value)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", f.Value, err)
	}
	return re, nil
}

// File scans path line by line against the filters. No filters means no
// matches.
func File(path string, filters []Filter) ([]Match, Stats, error) {
	stats := make(Stats, len(filters))
	if len(filters) == 0 {
		return nil, stats, nil
	}

	patterns := make([]*regexp.Regexp, len(filters))
	for i, f := range filters {
		re, err := compile(f)
		if err != nil {
			return nil, nil, err
		}
		patterns[i] = re
	}

	in, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()

	var matches []Match
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		text := scanner.Text()
		var hit []int
		for i, re := range patterns {
			if re.MatchString(text) {
				hit = append(hit, i)
				stats[i]++
			}
		}
		if hit != nil {
			matches = append(matches, Match{Line: line, Filters: hit})
		}
		line++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return matches, stats, nil
}

// Summary renders stats for log output, ordered by filter index.
func (s Stats) Summary(filters []Filter) string {
	parts := make([]string, 0, len(filters))
	for i, f := range filters {
		parts = append(parts, fmt.Sprintf("%q: %d", f.Value, s[i]))
	}
	return strings.Join(parts, ", ")
}
