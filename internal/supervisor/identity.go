// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"fmt"
	"path/filepath"

	"github.com/moby/sys/user"
)

// Identity is the unprivileged account the engine runs as.
type Identity struct {
	Name   string
	UID    int
	GID    int
	Groups []int
	// Home is the home directory inside the container.
	Home string
}

// LookupIdentity resolves name against root's /etc/passwd and /etc/group.
// The account must already exist; it is never created at runtime.
func LookupIdentity(root, name string) (*Identity, error) {
	passwd := filepath.Join(root, "etc", "passwd")
	group := filepath.Join(root, "etc", "group")

	eu, err := user.GetExecUserPath(name, nil, passwd, group)
	if err != nil {
		return nil, fmt.Errorf("looking up user %q: %w", name, err)
	}
	if eu.Uid == 0 {
		return nil, fmt.Errorf("user %q resolves to uid 0", name)
	}
	home := eu.Home
	if home == "" || home == "/" {
		home = filepath.Join("/home", name)
	}
	return &Identity{
		Name:   name,
		UID:    eu.Uid,
		GID:    eu.Gid,
		Groups: eu.Sgids,
		Home:   home,
	}, nil
}
