// SPDX-License-Identifier: MPL-2.0

// Package config loads the vvimage build file using Viper with CUE as the
// file format.
//
// The build file (vvimage.cue in the working directory, or the path given by
// --config) declares the variant, the dependency descriptors, the dictionary
// strategy, the engine application tree, the image parameters and the
// artifact store. It is validated against the embedded build_schema.cue and
// merged over defaults; VVIMAGE_* environment variables override scalar keys
// (e.g. VVIMAGE_VARIANT, VVIMAGE_JOBS, VVIMAGE_STORE_DIR).
//
// The build file is the single source of truth for versions and variants.
package config
