// SPDX-License-Identifier: MPL-2.0

// Package descriptor defines the immutable inputs of artifact resolution:
// dependency descriptors, artifact kinds, and the variant selector that picks
// one binary build of the core library and tensor runtime.
//
// A Descriptor is identified by (Name, Version); combined with a Variant it
// forms the CacheKey under which a resolved artifact is stored.
package descriptor
