package symbol

import "github.com/ianlancetaylor/demangle"

// Demangle returns the demangled C++ or Rust name without its parameter
// list ("Camera::get_main"), or name itself if it is not mangled.
func Demangle(name string) string {
	return demangle.Filter(name, demangle.NoParams)
}
