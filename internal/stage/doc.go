// SPDX-License-Identifier: MPL-2.0

// Package stage runs a build graph of isolated stages.
//
// Each stage declares the stages whose outputs it consumes and writes its
// own output into a private workspace. When a stage succeeds its workspace
// is renamed into the shared output area; only then are its consumers
// released. Independent stages run concurrently up to a job limit. The first
// failure cancels every stage that has not finished.
package stage
