package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which operation produced the error
type Phase string

const (
	PhaseCreate  Phase = "create"  // object construction
	PhaseDispose Phase = "dispose" // release and teardown
	PhaseAccess  Phase = "access"  // accessor calls on views
	PhaseBuild   Phase = "build"   // builder operations
	PhaseIntern  Phase = "intern"  // canonical object lookup
	PhaseVerify  Phase = "verify"  // module verification
	PhaseEmit    Phase = "emit"    // code generation
	PhaseParse   Phase = "parse"   // bitcode parsing
	PhaseExecute Phase = "execute" // running emitted code
)

// Kind categorizes the error
type Kind string

const (
	KindStaleHandle      Kind = "stale_handle"
	KindCrossContext     Kind = "cross_context"
	KindUseAfterMove     Kind = "use_after_move"
	KindNativeAllocation Kind = "native_allocation"
	KindInvalidState     Kind = "invalid_state"
	KindTypeMismatch     Kind = "type_mismatch"
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindUnsupported      Kind = "unsupported"
	KindNative           Kind = "native"
)

// Sentinels match any error of their kind regardless of phase.
var (
	ErrStaleHandle      = &Error{Kind: KindStaleHandle}
	ErrCrossContext     = &Error{Kind: KindCrossContext}
	ErrUseAfterMove     = &Error{Kind: KindUseAfterMove}
	ErrNativeAllocation = &Error{Kind: KindNativeAllocation}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrTypeMismatch     = &Error{Kind: KindTypeMismatch}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
	ErrNative           = &Error{Kind: KindNative}
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Object string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "/"))
	}

	if e.Object != "" {
		b.WriteString(": ")
		b.WriteString(e.Object)
	}

	if e.Detail != "" {
		if e.Object != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches every phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the object path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Object sets the object category
func (b *Builder) Object(object string) *Builder {
	b.err.Object = object
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// StaleHandle creates an error for a view whose owning arena was torn down
func StaleHandle(phase Phase, object string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStaleHandle,
		Object: object,
		Detail: "owning scope was disposed",
	}
}

// CrossContext creates an error for objects combined across contexts
func CrossContext(phase Phase, object string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCrossContext,
		Object: object,
		Detail: "belongs to a different context",
	}
}

// CrossModule creates an error for objects combined across modules of one
// context
func CrossModule(phase Phase, object string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCrossContext,
		Object: object,
		Detail: "belongs to a different module",
	}
}

// UseAfterMove creates an error for a wrapper used after its ownership moved
func UseAfterMove(phase Phase, object string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUseAfterMove,
		Object: object,
		Detail: "ownership was moved",
	}
}

// NativeAllocation creates an error for a native constructor returning null
func NativeAllocation(phase Phase, object string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNativeAllocation,
		Object: object,
		Detail: "native allocation failed",
	}
}

// InvalidState creates an error for an operation not allowed in the current state
func InvalidState(phase Phase, object, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Object: object,
		Detail: detail,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, feature string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: feature + " is not supported",
	}
}

// Native creates an error from a message reported by the native library
func Native(phase Phase, message string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNative,
		Detail: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
