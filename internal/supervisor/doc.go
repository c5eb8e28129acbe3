// SPDX-License-Identifier: MPL-2.0

// Package supervisor implements the container entrypoint. It stages the
// runtime user's home directory while privileged, then replaces itself with
// the engine process running as that user.
//
// The lifecycle has two states. STAGING creates the home directory, places
// the default user dictionary, fixes ownership and refreshes the loader
// cache. RUNNING begins when the engine is launched; with the exec launch
// mode the supervisor no longer exists after that point. A staging failure
// ends the process with a non-zero status and the engine is never started.
package supervisor
