package normalize

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// excerptLimit caps the diagnostic excerpt carried by a ParseError.
const excerptLimit = 200

// ParseError is returned when no JSON object can be recovered from a model
// response. It is terminal for the call that produced it.
type ParseError struct {
	// Excerpt holds the first excerptLimit characters of the fence-stripped text.
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("normalize: no JSON object in model response: %v (excerpt: %q)", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError returns true if err (or any error in its chain) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func newParseError(cleaned string, cause error) *ParseError {
	return &ParseError{Excerpt: excerpt(cleaned, excerptLimit), Err: cause}
}

// excerpt truncates s to at most n runes without splitting a UTF-8 sequence.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
