package types

import (
	"fmt"
	"strings"
)

// Evaluation error kind tags. Tags are machine-readable and stable;
// messages are for humans.
const (
	TagUnknownFunction = "UnknownFunctionError"
	TagNoMatch         = "NoMatchError"
	TagOperandType     = "OperandTypeError"
	TagInvalidPath     = "InvalidPathError"
	TagBadCast         = "BadCastError"
	TagNotIterable     = "NotIterableError"
	TagSecretPath      = "SecretPathError"
	TagTypeError       = "TypeError"
	TagValueError      = "ValueError"
	TagZeroDivision    = "ZeroDivisionError"
	TagArity           = "ArityError"
)

// ParseError reports that an expression string does not conform to the
// grammar. It carries a cleaned user-facing message plus machine detail.
type ParseError struct {
	Message    string // cleaned, user-facing
	Line       int
	Column     int
	Expression string // the source expression text
	Cause      string // raw underlying error text
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, column %d) in expression %q", e.Message, e.Line, e.Column, e.Expression)
	}
	return fmt.Sprintf("%s in expression %q", e.Message, e.Expression)
}

// NewParseError creates a ParseError with position info. Expressions are
// single-line, so line is always 1 and column is the byte offset + 1.
func NewParseError(msg, expression string, pos int) *ParseError {
	return &ParseError{
		Message:    msg,
		Line:       1,
		Column:     pos + 1,
		Expression: expression,
		Cause:      msg,
	}
}

// EvalError reports that a parse tree could not be reduced to a value
// against a given operand. Detail carries structured context such as the
// failing path or operand snapshot.
type EvalError struct {
	Message    string
	Tags       []string
	Expression string           // source expression, when known
	Fragment   string           // pretty-printed tree fragment at the failure site
	Detail     map[string]Value // structured detail (e.g. operand snapshot)
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if len(e.Tags) > 0 {
		sb.WriteString(" [" + strings.Join(e.Tags, ", ") + "]")
	}
	if e.Fragment != "" {
		sb.WriteString("\n\n")
		sb.WriteString(e.Fragment)
	}
	return sb.String()
}

// HasTag returns true if the error carries the specified tag.
func (e *EvalError) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WithDetail attaches a structured detail value and returns the error.
func (e *EvalError) WithDetail(key string, v Value) *EvalError {
	if e.Detail == nil {
		e.Detail = make(map[string]Value)
	}
	e.Detail[key] = v
	return e
}

// NewEvalError creates an evaluation error with the given tags.
func NewEvalError(msg string, tags ...string) *EvalError {
	return &EvalError{Message: msg, Tags: tags}
}

// NewUnknownFunctionError names a function missing from the registry.
func NewUnknownFunctionError(name string) *EvalError {
	return NewEvalError(fmt.Sprintf("Unknown function %q", name), TagUnknownFunction)
}

// NewNoMatchError reports a strict path resolution with zero matches.
func NewNoMatchError(path string) *EvalError {
	return NewEvalError(fmt.Sprintf("no match for path %q", path), TagNoMatch)
}

// NewOperandTypeError reports a resolver operand that is neither a map
// nor a list.
func NewOperandTypeError(actual ValueType) *EvalError {
	return NewEvalError(fmt.Sprintf("operand must be a map or list, got %s", actual), TagOperandType)
}

// NewInvalidPathError reports a path that the resolver dialect rejects.
func NewInvalidPathError(path string) *EvalError {
	return NewEvalError(fmt.Sprintf("invalid jsonpath expression %q", path), TagInvalidPath)
}

// NewBadCastError reports a value that cannot be coerced to a type.
func NewBadCastError(v Value, target string) *EvalError {
	return NewEvalError(fmt.Sprintf("cannot cast %s value %q to %s", v.Type(), v.String(), target), TagBadCast)
}

// NewNotIterableError reports an iterator collection that is not a list.
func NewNotIterableError(v Value) *EvalError {
	return NewEvalError(fmt.Sprintf("iterator collection must be iterable, got %s", v.Type()), TagNotIterable)
}

// NewSecretPathError reports a malformed secret reference. The message
// states the expected two-segment format because a bare SECRETS.KEY is a
// common authoring mistake, distinct from a syntax error.
func NewSecretPathError(ref string) *EvalError {
	return NewEvalError(fmt.Sprintf("invalid secret reference %q: expected the format SECRETS.my_secret.KEY", ref), TagSecretPath)
}

// NewTypeError creates a TypeError-tagged evaluation error.
func NewTypeError(msg string) *EvalError {
	return NewEvalError(msg, TagTypeError)
}

// NewValueError creates a ValueError-tagged evaluation error.
func NewValueError(msg string) *EvalError {
	return NewEvalError(msg, TagValueError)
}

// NewZeroDivisionError creates a ZeroDivisionError-tagged error.
func NewZeroDivisionError() *EvalError {
	return NewEvalError("division by zero", TagZeroDivision)
}

// NewArityError reports a function called with the wrong number of
// positional arguments.
func NewArityError(name string, min, max, got int) *EvalError {
	if min == max {
		return NewEvalError(fmt.Sprintf("%s expects %d argument(s), got %d", name, min, got), TagArity)
	}
	if max < 0 {
		return NewEvalError(fmt.Sprintf("%s expects at least %d argument(s), got %d", name, min, got), TagArity)
	}
	return NewEvalError(fmt.Sprintf("%s expects %d-%d arguments, got %d", name, min, max, got), TagArity)
}

// ScriptError reports a runtime failure inside a lambda body that passed
// syntactic and denylist checks. It is deliberately a distinct type so
// callers can tell "your lambda is malformed" from "your lambda failed
// on this input".
type ScriptError struct {
	Message string
	Source  string // the lambda source text
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("script execution error in %q: %s", e.Source, e.Message)
}

// NewScriptError creates a ScriptError.
func NewScriptError(source, msg string) *ScriptError {
	return &ScriptError{Message: msg, Source: source}
}
