// Package metric derives one normalized scalar in [0,1] per region from
// heterogeneous per-region payloads.
package metric

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when a metric response is not a mapping at all.
var ErrMalformedPayload = errors.New("malformed metric payload")

// Record is an opaque nested payload for one region.
type Record map[string]any

// Records maps raw, not yet reconciled, region keys to their payloads.
type Records map[string]Record

// Decode accepts either a bare {code: record} object or the Civic Data API
// envelope {"response_fips": {code: record}}. Entries that are not objects
// decode to empty records.
func Decode(payload []byte) (Records, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: null body", ErrMalformedPayload)
	}

	if env, ok := top["response_fips"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(env, &inner); err != nil || inner == nil {
			return nil, fmt.Errorf("%w: response_fips is not an object", ErrMalformedPayload)
		}
		top = inner
	}

	out := make(Records, len(top))
	for k, raw := range top {
		var rec map[string]any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil || rec == nil {
			out[k] = Record{}
			continue
		}
		out[k] = Record(rec)
	}
	return out, nil
}

// lookup walks a dotted path through nested objects.
func (r Record) lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (r Record) number(path string) (float64, bool) {
	v, ok := r.lookup(path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Record:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !isBad(t)
	case float32:
		return float64(t), !isBad(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil && !isBad(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !isBad(f)
	default:
		return 0, false
	}
}
