// SPDX-License-Identifier: MPL-2.0

// Package resolve turns a dependency descriptor into a normalized artifact
// directory. For one descriptor the steps run strictly in sequence: render
// the release URL, fetch the archive into scratch space, verify it, extract
// it, normalize the tree into the canonical layout of its kind, and publish
// the result onto the target path with a single rename. Scratch space is
// removed on every exit path.
//
// Resolution is a pure function of (name, version, variant): results are
// optionally persisted in an artifact store, and a target whose stamp under
// StampDir still matches its tree is left untouched.
package resolve
