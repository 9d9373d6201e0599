// Package vm executes msq programs.
//
// This package contains:
//   - the value model (strings, 32-bit ints and floats, booleans, closures)
//   - flat instructions and operands, including deferred calls
//   - the memory store keyed by resolved storage ids
//   - the engine, with per-call activation records
//   - the built-in function table
package vm
