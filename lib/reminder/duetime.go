package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnparseableDue = errors.New("due time matches no accepted format")

// ParseError reports due text that matches none of the accepted layouts.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse due %q: %v", e.Input, ErrUnparseableDue)
}

func (e *ParseError) Unwrap() error { return ErrUnparseableDue }

// dueLayouts are tried in order; the first match wins. Numeric fields other
// than the year take one or two digits.
var dueLayouts = []string{
	"2006-1-2T15:4:5.999999Z",
	"2006-1-2T15:4:5Z",
	"2006-1-2T15:4:5",
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"1/2/2006 3:4 PM",
}

// maxFracDigits bounds the fractional seconds; time.Parse takes any length.
const maxFracDigits = 6

// TimeLabelLayout renders the due instant in reminder emails.
const TimeLabelLayout = "2006-01-02 03:04 PM UTC"

// ParseDue parses due text into a UTC instant. Inputs carry no zone and are
// read as UTC. Letters match in any case.
func ParseDue(text string) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	if fracDigits(s) > maxFracDigits {
		return time.Time{}, &ParseError{Input: text}
	}
	for _, layout := range dueLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Input: text}
}

// fracDigits counts the digits after the last '.' in s.
func fracDigits(s string) int {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return 0
	}
	n := 0
	for _, c := range s[i+1:] {
		if c < '0' || c > '9' {
			break
		}
		n++
	}
	return n
}

// FormatDue renders t in the first accepted form, zero padded.
func FormatDue(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999Z")
}
