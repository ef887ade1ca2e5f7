package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/pgproxy/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrEmptyName         = "E201" // function name is required
	ErrInvalidIdentifier = "E202" // name is not a plain identifier
	ErrReservedName      = "E203" // name collides with JS keywords or scaffolding
	ErrInvalidParam      = "E204" // parameter is not a plain identifier
	ErrDuplicateParam    = "E205" // parameter declared twice
	ErrBodyDelimiter     = "E206" // body contains the dollar-quote delimiter
	ErrDuplicateFunction = "E207" // function appears twice in a batch
	ErrExposeConflict    = "E208" // exposed name equals a batch function
	ErrInvalidSchema     = "E209" // schema is not a plain identifier
)

// identifierPattern is safe in SQL identifiers, JS identifiers and
// single-quoted JS strings alike.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedNames cannot be bound with const inside the generated body.
// "params" and "plv8" are names the procedure scaffolding already uses.
var reservedNames = map[string]bool{
	"params": true, "plv8": true, "arguments": true, "eval": true,
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true,
	"in": true, "instanceof": true, "interface": true, "let": true,
	"new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true,
}

// CompileError describes a function that cannot be rendered.
type CompileError struct {
	Function string
	Field    string
	Code     string
	Message  string
}

func (e *CompileError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Function, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a function spec before rendering.
// Returns all errors found (does not fail-fast).
func Validate(fn ir.FunctionSpec) []*CompileError {
	var errs []*CompileError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, &CompileError{
			Function: fn.Name,
			Field:    field,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	switch {
	case fn.Name == "":
		add("name", ErrEmptyName, "name is required")
	case !identifierPattern.MatchString(fn.Name):
		add("name", ErrInvalidIdentifier, "%q is not a valid identifier", fn.Name)
	case reservedNames[fn.Name]:
		add("name", ErrReservedName, "%q is reserved", fn.Name)
	}

	seen := make(map[string]bool, len(fn.Params))
	for i, p := range fn.Params {
		field := fmt.Sprintf("params[%d]", i)
		switch {
		case !identifierPattern.MatchString(p):
			add(field, ErrInvalidParam, "%q is not a valid identifier", p)
		case reservedNames[p]:
			add(field, ErrReservedName, "%q is reserved", p)
		case seen[p]:
			add(field, ErrDuplicateParam, "parameter %q declared twice", p)
		}
		seen[p] = true
	}

	// A second delimiter inside the body would end the dollar quote early and
	// make body extraction during change detection ambiguous.
	if strings.Contains(fn.Body, ir.BodyDelimiter) {
		add("body", ErrBodyDelimiter, "body must not contain %s", ir.BodyDelimiter)
	}

	return errs
}

// validateSchema checks the target schema name.
func validateSchema(schema string) error {
	if !identifierPattern.MatchString(schema) {
		return &CompileError{
			Field:   "schema",
			Code:    ErrInvalidSchema,
			Message: fmt.Sprintf("%q is not a valid identifier", schema),
		}
	}
	return nil
}

// validateExpose checks exposed names against the batch.
func validateExpose(expose []string, batch map[string]bool) error {
	for _, name := range expose {
		if !identifierPattern.MatchString(name) {
			return &CompileError{Field: "expose", Code: ErrInvalidIdentifier, Message: fmt.Sprintf("%q is not a valid identifier", name)}
		}
		if reservedNames[name] {
			return &CompileError{Field: "expose", Code: ErrReservedName, Message: fmt.Sprintf("%q is reserved", name)}
		}
		if batch[name] {
			return &CompileError{
				Function: name,
				Field:    "expose",
				Code:     ErrExposeConflict,
				Message:  "exposed name is also a remote function in this batch",
			}
		}
	}
	return nil
}
