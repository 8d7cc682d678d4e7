// Package serial implements the property serial number format PROP-YYYY-NNNNNN.
package serial

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Prefix is the fixed literal every serial number starts with.
const Prefix = "PROP"

// MaxSequence is the largest sequence that fits the 6-digit field.
const MaxSequence = 999999

// Pattern matches a complete serial number.
var Pattern = regexp.MustCompile(`^PROP-\d{4}-\d{6}$`)

// ErrSequenceOutOfRange is returned by Generate for sequences outside [0, MaxSequence].
var ErrSequenceOutOfRange = errors.New("serial: sequence out of range")

// Parts is a decomposed serial number.
type Parts struct {
	Year     int `json:"year"`
	Sequence int `json:"sequence"`
}

// Validate reports whether s is a well-formed serial number.
func Validate(s string) bool {
	return Pattern.MatchString(s)
}

// Format strips all whitespace and upper-cases s.
func Format(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.ToUpper(cleaned)
}

// Normalize formats s and reports whether the result is valid.
func Normalize(s string) (string, bool) {
	formatted := Format(s)
	return formatted, Validate(formatted)
}

// Parse splits a valid serial number into year and sequence.
func Parse(s string) (Parts, bool) {
	if !Validate(s) {
		return Parts{}, false
	}

	fields := strings.Split(s, "-")
	year, _ := strconv.Atoi(fields[1])
	sequence, _ := strconv.Atoi(fields[2])

	return Parts{Year: year, Sequence: sequence}, true
}

// Generate builds a serial number for the current year.
// Uniqueness of sequence is the caller's responsibility.
func Generate(sequence int) (string, error) {
	return GenerateAt(time.Now(), sequence)
}

// GenerateAt builds a serial number for the year of t.
func GenerateAt(t time.Time, sequence int) (string, error) {
	if sequence < 0 || sequence > MaxSequence {
		return "", fmt.Errorf("%w: %d", ErrSequenceOutOfRange, sequence)
	}
	return fmt.Sprintf("%s-%04d-%06d", Prefix, t.Year(), sequence), nil
}
