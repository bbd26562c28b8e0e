// Package flux implements the Flux scripting front-end. A Flux program is
// Starlark text written with a few surface markers:
//   - `fn name(args):` at the start of a line declares a function (`def`).
//   - `let name = expr` at the start of a line binds a name.
//   - Every capability of the standard library is a global (sqrt, read_file,
//     spawn_thread, retry, ...), and `std` groups them all as one value.
//
// Running a program rewrites the markers line by line, executes the result in
// a fresh namespace seeded with the capabilities, then calls `main()` if the
// program defined it. Top-level definitions may shadow capabilities.
//
// Capabilities report failures as *Error values whose Kind forms a hierarchy
// (ValueError, OSError, FileNotFoundError, ...), which retry policies match
// against.
package flux
