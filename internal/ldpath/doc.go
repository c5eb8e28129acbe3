// SPDX-License-Identifier: MPL-2.0

// Package ldpath models the dynamic loader search configuration as an
// explicit value.
//
// A SearchPath is an ordered, de-duplicated list of absolute directories. The
// resolver returns one per artifact, the assembler merges them and renders a
// single ld.so.conf.d file, and dictionary steps receive it as an explicit
// child environment. Nothing in this package mutates the environment of the
// running process.
//
// Verify checks the DT_NEEDED closure of every shared object in the search
// path, so a missing tensor runtime fails the build instead of the engine
// start.
package ldpath
