//go:build debug_mem_utils

package memutils

// DebugValidate panics with the first inconsistency that validatable reports
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}
