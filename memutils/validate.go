package memutils

// Validatable is anything that can check its own internal consistency. Implementations must not take
// locks already held by the caller of DebugValidate.
type Validatable interface {
	Validate() error
}
