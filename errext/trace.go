// Package errext contains extensions for normal Go errors that are used in wdrunner.
package errext

// HasTrace is implemented by errors that know whether the underlying cause
// chain is worth showing to the user. Configuration and environment problems
// usually aren't, unclassified failures usually are.
type HasTrace interface {
	error
	ShouldShowTrace() bool
	Unwrap() error
}
