// Package keys derives stable cache keys for fetched payloads.
package keys

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

// MetricKey identifies one metric request: the service it was sent to and the
// exact set of requested codes. Order and duplicates of codes do not matter.
func MetricKey(serviceURL string, codes []region.Code) string {
	set := make([]string, 0, len(codes))
	seen := make(map[region.Code]struct{}, len(codes))
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		set = append(set, string(c))
	}
	sort.Strings(set)

	d := xxhash.New()
	for _, c := range set {
		_, _ = d.WriteString(c)
		_, _ = d.WriteString(",")
	}
	return fmt.Sprintf("metric:%s:n=%d:f=%016x", sanitize(serviceHost(serviceURL)), len(set), d.Sum64())
}

// SourceKey identifies a fetched document (roster or topology) by kind and location.
func SourceKey(kind, location string) string {
	loc := strings.TrimSpace(location)
	return fmt.Sprintf("source:%s:f=%016x", sanitize(kind), xxhash.Sum64String(loc))
}

func serviceHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	return u.Host + strings.TrimRight(u.Path, "/")
}

// sanitize keeps [A-Za-z0-9:_-] and folds runs of anything else into one '-'.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
