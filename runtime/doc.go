// File: runtime/doc.go
// Author: momentics <momentics@gmail.com>

// Package runtime assembles the buffer pool, port manager, scheduler,
// table engine, and pipeline dispatcher behind one value with explicit
// init/teardown, instead of package-level singletons. Every test or
// example constructs its own Runtime and tears it down, the way the
// teacher's server.Server is built fresh per test rather than shared.
package runtime
