package auth

import (
	"fmt"
	"os/user"

	"github.com/newtron-network/junotron/pkg/util"
)

// Policy is the access section of the inventory. Keys of Permissions are
// permission names or "all"; values are user names or user group names.
// Devices holds per-device permission maps checked before the global one.
type Policy struct {
	SuperUsers  []string                       `yaml:"superusers"`
	UserGroups  map[string][]string            `yaml:"user_groups"`
	Permissions map[string][]string            `yaml:"permissions"`
	Devices     map[string]map[string][]string `yaml:"devices"`
}

// Checker validates user permissions. A Checker without a policy allows
// everything, and so does a nil Checker.
type Checker struct {
	policy      *Policy
	currentUser string
}

// NewChecker creates a permission checker for the current OS user.
func NewChecker(policy *Policy) *Checker {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return &Checker{
		policy:      policy,
		currentUser: username,
	}
}

// SetUser overrides the current user (for testing or sudo)
func (c *Checker) SetUser(username string) {
	c.currentUser = username
}

// CurrentUser returns the current username
func (c *Checker) CurrentUser() string {
	return c.currentUser
}

// Check verifies if the current user has a permission
func (c *Checker) Check(permission Permission, ctx *Context) error {
	if c == nil {
		return nil
	}
	return c.CheckUser(c.currentUser, permission, ctx)
}

// CheckUser verifies if a specific user has a permission
func (c *Checker) CheckUser(username string, permission Permission, ctx *Context) error {
	if c == nil || c.policy == nil {
		return nil
	}
	if c.isSuperUser(username) {
		return nil
	}

	// Device-specific permissions first
	if ctx != nil && ctx.Device != "" {
		if perms, ok := c.policy.Devices[ctx.Device]; ok && c.checkPermissionMap(username, permission, perms) {
			return nil
		}
	}

	if c.checkPermissionMap(username, permission, c.policy.Permissions) {
		return nil
	}

	return &PermissionError{
		User:       username,
		Permission: permission,
		Context:    ctx,
	}
}

// IsSuperUser returns true if the current user is a superuser
func (c *Checker) IsSuperUser() bool {
	return c.isSuperUser(c.currentUser)
}

func (c *Checker) isSuperUser(username string) bool {
	if c.policy == nil {
		return false
	}
	for _, su := range c.policy.SuperUsers {
		if su == username {
			return true
		}
	}
	return false
}

// checkPermissionMap checks whether username has the given permission in permMap.
// It first checks the "all" wildcard key, then the specific permission key.
func (c *Checker) checkPermissionMap(username string, permission Permission, permMap map[string][]string) bool {
	if groups, ok := permMap[string(PermAll)]; ok {
		if c.userInGroups(username, groups) {
			return true
		}
	}

	groups, ok := permMap[string(permission)]
	if !ok {
		return false
	}
	return c.userInGroups(username, groups)
}

func (c *Checker) userInGroups(username string, allowedGroups []string) bool {
	for _, group := range allowedGroups {
		if group == username {
			return true
		}
		for _, member := range c.policy.UserGroups[group] {
			if member == username {
				return true
			}
		}
	}
	return false
}

// PermissionError represents a permission denial
type PermissionError struct {
	User       string
	Permission Permission
	Context    *Context
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: user '%s' does not have '%s' permission", e.User, e.Permission)
	if e.Context != nil {
		if e.Context.Group != "" {
			msg += fmt.Sprintf(" for '%s'", e.Context.Group)
		}
		if e.Context.Device != "" {
			msg += fmt.Sprintf(" on device '%s'", e.Context.Device)
		}
	}
	return msg
}

func (e *PermissionError) Unwrap() error {
	return util.ErrPermissionDenied
}
