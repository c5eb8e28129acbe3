// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved, and
// remediation hints. The Issue catalog holds Markdown guidance for each
// failure class (resolution, dictionary, composition, staging) and renders it
// with glamour when the CLI reports an error.
package issue
