package manifest

import (
	"fmt"

	"github.com/lumen-browser/extengine/internal/shared/types"
)

// ParseErrorKind classifies manifest rejection reasons.
type ParseErrorKind string

const (
	KindJSONError          ParseErrorKind = "json_error"
	KindMissingField       ParseErrorKind = "missing_field"
	KindInvalidValue       ParseErrorKind = "invalid_value"
	KindUnsupportedVersion ParseErrorKind = "unsupported_version"
)

// ParseError is the parser's failure type. It unwraps to
// types.ErrInvalidManifest so callers above the parser boundary only see
// the terminal taxonomy.
type ParseError struct {
	Kind  ParseErrorKind
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest %s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("manifest %s: %s", e.Kind, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return types.ErrInvalidManifest
}

func jsonError(cause error) *ParseError {
	return &ParseError{Kind: KindJSONError, Msg: cause.Error()}
}

func missingField(field string) *ParseError {
	return &ParseError{Kind: KindMissingField, Field: field, Msg: "required field is empty"}
}

func invalidValue(field, msg string) *ParseError {
	return &ParseError{Kind: KindInvalidValue, Field: field, Msg: msg}
}

func unsupportedVersion(got int) *ParseError {
	return &ParseError{
		Kind: KindUnsupportedVersion,
		Msg:  fmt.Sprintf("manifest_version %d is not supported (want 2 or 3)", got),
	}
}
