// Package auth provides permission-based access control for service
// operations.
package auth

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermServiceActivate   Permission = "service.activate"
	PermServiceDeactivate Permission = "service.deactivate"
	PermServicePreview    Permission = "service.preview"

	PermCapabilityView Permission = "capability.view"
	PermAuditView      Permission = "audit.view"

	PermAll Permission = "all" // Superuser - allows everything
)

// PermissionCategory groups related permissions
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories
var StandardCategories = []PermissionCategory{
	{
		Name:        "service",
		Description: "Service activation",
		Permissions: []Permission{PermServiceActivate, PermServiceDeactivate, PermServicePreview},
	},
	{
		Name:        "capability",
		Description: "Node capability inspection",
		Permissions: []Permission{PermCapabilityView},
	},
	{
		Name:        "audit",
		Description: "Audit log access",
		Permissions: []Permission{PermAuditView},
	},
}

// Context provides context for permission checks
type Context struct {
	Device  string
	Service string
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

// WithService sets the service context
func (c *Context) WithService(service string) *Context {
	c.Service = service
	return c
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermServicePreview, PermCapabilityView, PermAuditView:
		return true
	}
	return false
}

// IsWriteOperation returns true if the permission changes devices
func (p Permission) IsWriteOperation() bool {
	return !p.IsReadOnly()
}
