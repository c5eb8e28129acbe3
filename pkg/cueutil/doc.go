// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides the CUE parsing steps shared by the build file
// loader and the schema tests:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify it with the schema definition
//  3. Validate and decode into a Go value
//
// # Usage
//
//	//go:embed build_schema.cue
//	var schemaBytes []byte
//
//	result, err := cueutil.ParseAndDecode[BuildFile](
//	    schemaBytes,
//	    userFileBytes,
//	    "#BuildFile",
//	    cueutil.WithFilename("vvimage.cue"),
//	)
//	if err != nil {
//	    return nil, err // error carries the JSON path of the offending field
//	}
//	return result.Value, nil
package cueutil
