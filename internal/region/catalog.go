package region

import (
	"bufio"
	"regexp"
	"sort"
	"strings"
)

// Catalog is the parsed roster. It is immutable once Parse returns.
type Catalog struct {
	counties map[Code]struct{}
	headers  map[Code]struct{}
	prefixes map[Code]struct{}
	names    map[Code]string
}

var rosterLine = regexp.MustCompile(`^\s*(\d{5})(.*)$`)

// Parse reads a line-oriented roster of "<5-digit code> <free text>" lines.
// Lines that do not start with a 5-digit code are skipped.
func Parse(rosterText string) *Catalog {
	c := &Catalog{
		counties: map[Code]struct{}{},
		headers:  map[Code]struct{}{},
		prefixes: map[Code]struct{}{},
		names:    map[Code]string{},
	}

	sc := bufio.NewScanner(strings.NewReader(rosterText))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := rosterLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		code := Code(m[1])
		name := strings.TrimSpace(m[2])

		if code.IsStateHeader() {
			st := code.StateOf()
			c.headers[st] = struct{}{}
			if name != "" {
				c.names[st] = name
			}
			continue
		}
		c.counties[code] = struct{}{}
		c.prefixes[code.StateOf()] = struct{}{}
		if name != "" {
			c.names[code] = name
		}
	}
	return c
}

// Empty reports whether the catalog has no codes at all. A nil catalog is empty.
func (c *Catalog) Empty() bool {
	return c == nil || (len(c.counties) == 0 && len(c.headers) == 0)
}

// Counties returns the sorted county codes (state headers excluded).
func (c *Catalog) Counties() []Code {
	if c == nil {
		return nil
	}
	return sortedKeys(c.counties)
}

// HeaderStates returns states that had an explicit "SS000" header line.
func (c *Catalog) HeaderStates() []Code {
	if c == nil {
		return nil
	}
	return sortedKeys(c.headers)
}

// CountyPrefixes returns the parent state of every county in the roster.
func (c *Catalog) CountyPrefixes() []Code {
	if c == nil {
		return nil
	}
	return sortedKeys(c.prefixes)
}

// States returns explicit header states plus county-derived prefixes.
func (c *Catalog) States() []Code {
	if c == nil {
		return nil
	}
	all := make(map[Code]struct{}, len(c.headers)+len(c.prefixes))
	for k := range c.headers {
		all[k] = struct{}{}
	}
	for k := range c.prefixes {
		all[k] = struct{}{}
	}
	return sortedKeys(all)
}

func (c *Catalog) HasCounty(code Code) bool {
	if c == nil {
		return false
	}
	_, ok := c.counties[code]
	return ok
}

func (c *Catalog) HasState(code Code) bool {
	if c == nil {
		return false
	}
	if _, ok := c.headers[code]; ok {
		return true
	}
	_, ok := c.prefixes[code]
	return ok
}

// Name returns the roster's free text for a code, if any.
func (c *Catalog) Name(code Code) string {
	if c == nil {
		return ""
	}
	return c.names[code]
}

// RequestCodes is the full code set used to request metrics: states, then counties.
func (c *Catalog) RequestCodes() []Code {
	if c == nil {
		return nil
	}
	states := c.States()
	out := make([]Code, 0, len(states)+len(c.counties))
	out = append(out, states...)
	out = append(out, c.Counties()...)
	return out
}

func sortedKeys(m map[Code]struct{}) []Code {
	out := make([]Code, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
