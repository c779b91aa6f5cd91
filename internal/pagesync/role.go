package pagesync

import (
	"fmt"
	"strings"
)

type Role int

const (
	RoleFollower Role = iota
	RoleController
)

func (r Role) String() string {
	if r == RoleController {
		return "reader"
	}
	return "viewer"
}

func (r Role) Toggle() Role {
	if r == RoleController {
		return RoleFollower
	}
	return RoleController
}

// ParseRole accepts the wire names ("reader", "viewer") and the descriptive
// ones ("controller", "follower").
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "viewer", "follower":
		return RoleFollower, nil
	case "reader", "controller":
		return RoleController, nil
	default:
		return RoleFollower, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}
