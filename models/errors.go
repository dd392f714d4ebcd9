package models

import (
	"errors"
	"fmt"
)

// Error classes of the extraction pipeline. The first four abort an
// extraction; asset and schema errors are degraded internally.
var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrNoMatchingRule  = errors.New("no matching rule")
	ErrFetch           = errors.New("fetch failed")
	ErrScriptExecution = errors.New("script execution failed")
	ErrAssetResolution = errors.New("asset resolution failed")
	ErrSchemaSync      = errors.New("schema sync failed")
	ErrSessionClosed   = errors.New("session closed")
)

// FetchError describes a failed static fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ScriptError describes a failed extraction, scripted or declarative.
type ScriptError struct {
	Rule string
	Err  error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("rule %q: extraction failed: %v", e.Rule, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

func (e *ScriptError) Is(target error) bool { return target == ErrScriptExecution }

// InvalidURLError wraps ErrInvalidURL with the offending input.
func InvalidURLError(rawURL string, reason string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidURL, rawURL, reason)
}
