package sentinel

// Compile-time check that Error implements the error interface.
var _ error = Error("")

// Error is an immutable error type backed by a string constant. It exists so
// that packages can declare sentinel errors as const rather than var,
// preventing accidental reassignment of package-level error values.
//
// Error is a comparable type, so the default == comparison used by errors.Is
// matches it correctly through wrapped error chains.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
