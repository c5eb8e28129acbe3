// SPDX-License-Identifier: MPL-2.0

// Package dict assembles the text-analysis dictionary shipped in the image.
//
// A build picks exactly one Strategy. StrategyNone copies the compiled base
// dictionary. StrategyMerge writes the overlay entries as one extra CSV into
// a copy of the base sources and recompiles the whole index. StrategyOverlay
// copies the compiled base and compiles the overlay entries separately into
// a user dictionary. With no overlay entries every strategy produces exactly
// what the base alone produces.
package dict
