// Package validation sanitizes pilot and course names and checks the control
// messages telemetry viewers send.
package validation

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Name limits, in bytes
const (
	MaxPilotNameLen  = 32
	MaxCourseNameLen = 64
)

var (
	ErrEmptyName    = errors.New("cannot be empty")
	ErrNameTooLong  = errors.New("too long")
	ErrInvalidName  = errors.New("contains invalid characters")
	pilotNameChars  = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.<>()]+$`)
	courseNameChars = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.,:#'()]+$`)
)

// NameError describes why a name was rejected. It unwraps to one of
// ErrEmptyName, ErrNameTooLong or ErrInvalidName.
type NameError struct {
	Kind   string // "pilot name" or "course name"
	Reason string
	Err    error
}

func (e *NameError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %v: %s", e.Kind, e.Err, e.Reason)
}

func (e *NameError) Unwrap() error { return e.Err }

// ValidatePilotName trims name and returns it HTML-escaped, since pilot names
// are shown on leaderboards and telemetry dashboards
func ValidatePilotName(name string) (string, error) {
	return sanitizeName("pilot name", name, MaxPilotNameLen, pilotNameChars)
}

// ValidateCourseName trims name and returns it HTML-escaped
func ValidateCourseName(name string) (string, error) {
	return sanitizeName("course name", name, MaxCourseNameLen, courseNameChars)
}

func sanitizeName(kind, name string, maxLen int, allowed *regexp.Regexp) (string, error) {
	reject := func(err error, reason string) (string, error) {
		return "", &NameError{Kind: kind, Reason: reason, Err: err}
	}

	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return reject(ErrEmptyName, "")
	case len(name) > maxLen:
		return reject(ErrNameTooLong, fmt.Sprintf("%d bytes, max %d", len(name), maxLen))
	case !utf8.ValidString(trimmed):
		return reject(ErrInvalidName, "not valid UTF-8")
	case strings.IndexFunc(trimmed, unicode.IsControl) >= 0:
		return reject(ErrInvalidName, "control characters")
	case !allowed.MatchString(trimmed):
		return reject(ErrInvalidName, "use letters, digits, spaces and basic punctuation")
	}
	return html.EscapeString(trimmed), nil
}
