// Package region parses the FIPS region roster and reconciles region codes.
package region

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindInvalid Kind = iota
	KindState
	KindCounty
	KindStateHeader
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindCounty:
		return "county"
	case KindStateHeader:
		return "state_header"
	default:
		return "invalid"
	}
}

// Code is a zero-padded FIPS code: 2 digits for a state, 5 for a county.
type Code string

const stateHeaderSuffix = "000"

func (c Code) Kind() Kind {
	s := string(c)
	if !allDigits(s) {
		return KindInvalid
	}
	switch len(s) {
	case 2:
		return KindState
	case 5:
		if strings.HasSuffix(s, stateHeaderSuffix) {
			return KindStateHeader
		}
		return KindCounty
	default:
		return KindInvalid
	}
}

func (c Code) IsState() bool       { return c.Kind() == KindState }
func (c Code) IsCounty() bool      { return c.Kind() == KindCounty }
func (c Code) IsStateHeader() bool { return c.Kind() == KindStateHeader }

// StateOf returns the 2-digit parent state; empty for invalid codes.
func (c Code) StateOf() Code {
	if c.Kind() == KindInvalid {
		return ""
	}
	return c[:2]
}

// NormalizeState pads a raw state id ("6", 6, "06") to a 2-digit code.
func NormalizeState(raw any) (Code, bool) {
	return pad(raw, 2)
}

// NormalizeCounty pads a raw county id ("6001", 6001) to a 5-digit code.
func NormalizeCounty(raw any) (Code, bool) {
	return pad(raw, 5)
}

// Normalize reconciles a key of unknown shape: up to 2 digits is a state,
// 3 to 5 digits is county-shaped. State header codes fold into their state.
func Normalize(raw any) (Code, bool) {
	s, ok := digitsOf(raw)
	if !ok {
		return "", false
	}
	var c Code
	switch {
	case len(s) <= 2:
		c = Code(leftPad(s, 2))
	case len(s) <= 5:
		c = Code(leftPad(s, 5))
	default:
		return "", false
	}
	if c.IsStateHeader() {
		return c.StateOf(), true
	}
	return c, true
}

func pad(raw any, width int) (Code, bool) {
	s, ok := digitsOf(raw)
	if !ok || len(s) > width {
		return "", false
	}
	return Code(leftPad(s, width)), true
}

func digitsOf(raw any) (string, bool) {
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case Code:
		s = strings.TrimSpace(string(v))
	case int:
		if v < 0 {
			return "", false
		}
		s = strconv.Itoa(v)
	case int64:
		if v < 0 {
			return "", false
		}
		s = strconv.FormatInt(v, 10)
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return "", false
		}
		s = strconv.FormatInt(int64(v), 10)
	case fmt.Stringer:
		s = strings.TrimSpace(v.String())
	default:
		return "", false
	}
	if s == "" || !allDigits(s) {
		return "", false
	}
	return s, true
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
