package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FaultKind classifies every error the pipeline can produce.
type FaultKind int

const (
	FaultUnexpectedCharacter FaultKind = iota + 1
	FaultNumberOverflow
	FaultUnexpectedToken
	FaultUnexpectedEndOfInput
	FaultUndefinedVariable
	FaultDivisionByZero
	FaultTypeMismatch
)

var faultNames = map[FaultKind]string{
	FaultUnexpectedCharacter:  "UnexpectedCharacter",
	FaultNumberOverflow:       "NumberOverflow",
	FaultUnexpectedToken:      "UnexpectedToken",
	FaultUnexpectedEndOfInput: "UnexpectedEndOfInput",
	FaultUndefinedVariable:    "UndefinedVariable",
	FaultDivisionByZero:       "DivisionByZero",
	FaultTypeMismatch:         "TypeMismatch",
}

var faultTitles = map[FaultKind]string{
	FaultUnexpectedCharacter:  "Unexpected Character",
	FaultNumberOverflow:       "Number Overflow",
	FaultUnexpectedToken:      "Unexpected Token",
	FaultUnexpectedEndOfInput: "Unexpected End Of Input",
	FaultUndefinedVariable:    "Undefined Variable",
	FaultDivisionByZero:       "Division By Zero",
	FaultTypeMismatch:         "Type Mismatch",
}

// String returns the kind's identifier, e.g. "DivisionByZero".
func (k FaultKind) String() string {
	if name, ok := faultNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Title returns the human-readable heading used in diagnostics.
func (k FaultKind) Title() string {
	if title, ok := faultTitles[k]; ok {
		return title
	}
	return "Internal Error"
}

// ParseFaultKind looks up a kind by its identifier.
func ParseFaultKind(name string) (FaultKind, bool) {
	for k, n := range faultNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// NoPos marks an error without a known source offset.
const NoPos = -1

// Error is a lexing, parsing or runtime fault.
type Error struct {
	Kind    FaultKind
	Message string
	Pos     int // byte offset in the source, or NoPos
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at offset %d)", e.Kind, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Diagnostic converts the fault into its reportable form.
func (e *Error) Diagnostic() *Diagnostic {
	return &Diagnostic{
		Kind:    e.Kind,
		Title:   e.Kind.Title(),
		Message: e.Message,
		Pos:     e.Pos,
	}
}

// Diagnostic is a structured, user-facing error record. The type checker
// returns diagnostics directly; every other fault converts to one through
// ToDiagnostic.
type Diagnostic struct {
	Kind    FaultKind
	Title   string
	Message string
	Help    string // empty when there is no hint
	Pos     int
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	return d.Title + ": " + d.Message
}

// HasHelp reports whether the diagnostic carries a remediation hint.
func (d *Diagnostic) HasHelp() bool {
	return d.Help != ""
}

type diagnosticJSON struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Help    string `json:"help,omitempty"`
	Pos     *int   `json:"pos,omitempty"`
}

// MarshalJSON encodes the diagnostic for the hosting APIs.
func (d *Diagnostic) MarshalJSON() ([]byte, error) {
	out := diagnosticJSON{
		Kind:    d.Kind.String(),
		Title:   d.Title,
		Message: d.Message,
		Help:    d.Help,
	}
	if d.Pos >= 0 {
		pos := d.Pos
		out.Pos = &pos
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (d *Diagnostic) UnmarshalJSON(data []byte) error {
	var raw diagnosticJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, _ := ParseFaultKind(raw.Kind)
	*d = Diagnostic{Kind: kind, Title: raw.Title, Message: raw.Message, Help: raw.Help, Pos: NoPos}
	if raw.Pos != nil {
		d.Pos = *raw.Pos
	}
	return nil
}

// ToDiagnostic maps any pipeline error to a Diagnostic. Errors that are
// neither faults nor diagnostics become an "Internal Error".
func ToDiagnostic(err error) *Diagnostic {
	if err == nil {
		return nil
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		return d
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Diagnostic()
	}
	return &Diagnostic{Title: "Internal Error", Message: err.Error(), Pos: NoPos}
}

// KindOf returns the fault kind carried by err, or 0 if there is none.
func KindOf(err error) FaultKind {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Kind
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Common constructors.

// NewUnexpectedCharacter creates a lexer fault for an unrecognized character.
func NewUnexpectedCharacter(ch rune, pos int) *Error {
	return &Error{Kind: FaultUnexpectedCharacter, Message: fmt.Sprintf("unexpected character %q", ch), Pos: pos}
}

// NewNumberOverflow creates a lexer fault for a literal outside int64.
func NewNumberOverflow(raw string, pos int) *Error {
	return &Error{Kind: FaultNumberOverflow, Message: fmt.Sprintf("integer literal %s does not fit in 64 bits", raw), Pos: pos}
}

// NewUnexpectedToken creates a parser fault.
func NewUnexpectedToken(msg string, pos int) *Error {
	return &Error{Kind: FaultUnexpectedToken, Message: msg, Pos: pos}
}

// NewUnexpectedEndOfInput creates a parser fault for truncated input.
func NewUnexpectedEndOfInput(msg string, pos int) *Error {
	return &Error{Kind: FaultUnexpectedEndOfInput, Message: msg, Pos: pos}
}

// NewUndefinedVariable creates a runtime fault for an unbound name.
func NewUndefinedVariable(name string) *Error {
	return &Error{Kind: FaultUndefinedVariable, Message: fmt.Sprintf("undefined variable '%s'", name), Pos: NoPos}
}

// NewDivisionByZero creates a runtime fault.
func NewDivisionByZero(pos int) *Error {
	return &Error{Kind: FaultDivisionByZero, Message: "division by zero", Pos: pos}
}

// NewTypeError creates a runtime fault for operands of the wrong kind.
func NewTypeError(msg string, pos int) *Error {
	return &Error{Kind: FaultTypeMismatch, Message: msg, Pos: pos}
}

// NewUnprovenVariable creates the checker diagnostic for a name used
// before any binding.
func NewUnprovenVariable(name string, pos int) *Diagnostic {
	return &Diagnostic{
		Kind:    FaultUndefinedVariable,
		Title:   "Unproven Variable",
		Message: fmt.Sprintf("The variable '%s' is used here, but no proof exists that it has been defined.", name),
		Help:    "Define the variable before using it, or pass it as an argument.",
		Pos:     pos,
	}
}

// NewTypeMismatch creates the checker diagnostic for a binary operation
// whose operands are not both Int.
func NewTypeMismatch(pos int) *Diagnostic {
	return &Diagnostic{
		Kind:    FaultTypeMismatch,
		Title:   "Type Mismatch",
		Message: "Both sides of this operation must have the same numeric type.",
		Pos:     pos,
	}
}
