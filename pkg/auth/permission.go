// Package auth provides permission-based access control.
package auth

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermPrefixListModify Permission = "prefix-list.modify"
	PermFirewallModify   Permission = "firewall.modify"
	PermStaticModify     Permission = "static.modify"
	PermBlackholeModify  Permission = "blackhole.modify"

	PermConfigView   Permission = "config.view"
	PermConfigCommit Permission = "config.commit"

	PermRouteQuery Permission = "route.query"
	PermInspect    Permission = "inspect.run"

	PermAll Permission = "all" // Superuser - allows everything
)

// ModifyPermission returns the write permission for a domain kind
// ("prefix-list", "firewall", "static", "blackhole").
func ModifyPermission(kind string) Permission {
	return Permission(kind + ".modify")
}

// PermissionCategory groups related permissions
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories
var StandardCategories = []PermissionCategory{
	{
		Name:        "config",
		Description: "Configuration changes",
		Permissions: []Permission{PermPrefixListModify, PermFirewallModify, PermStaticModify, PermBlackholeModify, PermConfigCommit},
	},
	{
		Name:        "view",
		Description: "Read-only access",
		Permissions: []Permission{PermConfigView, PermRouteQuery, PermInspect},
	},
}

// Context provides context for permission checks
type Context struct {
	Device string
	Group  string
}

// NewContext creates a new permission context
func NewContext() *Context {
	return &Context{}
}

// WithDevice sets the device context
func (c *Context) WithDevice(device string) *Context {
	c.Device = device
	return c
}

// WithGroup sets the configuration group being changed
func (c *Context) WithGroup(group string) *Context {
	c.Group = group
	return c
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermConfigView, PermRouteQuery, PermInspect:
		return true
	}
	return false
}
