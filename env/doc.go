// Package env implements the execution context of the phpenv runtime.
//
// This package contains:
//   - Scope: compiled declarations shared by every context created from it
//   - Context: one script execution (call stack, buffers, registries)
//   - the diagnostic pipeline and uncaught-failure classification
//   - destructor scheduling for objects that declare one
//   - class/function/constant registries with autoloading
//   - module import and include/require
//   - the output buffer stack and the configuration store
//
// Script-level control transfer (fatal errors, script exceptions, exit)
// travels as a panic carrying a typed error. Context.Guard is the recover
// boundary that turns it back into an ordinary error value.
package env
