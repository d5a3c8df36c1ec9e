package auth

import (
	"fmt"
	"os/user"
	"slices"
	"sort"

	"github.com/newtron-network/evc/pkg/util"
)

// Policy is the access section of the inventory. Permission maps name a
// permission (or "all") and list the users or groups holding it.
type Policy struct {
	SuperUsers  []string                       `yaml:"super_users,omitempty"`
	UserGroups  map[string][]string            `yaml:"user_groups,omitempty"`
	Permissions map[string][]string            `yaml:"permissions,omitempty"`
	Services    map[string]map[string][]string `yaml:"services,omitempty"`
}

// Checker validates user permissions. A nil policy allows everything.
type Checker struct {
	policy      *Policy
	currentUser string
}

// NewChecker creates a permission checker for the OS user
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
	return c.CheckUser(c.currentUser, permission, ctx)
}

// CheckUser verifies if a specific user has a permission
func (c *Checker) CheckUser(username string, permission Permission, ctx *Context) error {
	if c.policy == nil || c.isSuperUser(username) {
		return nil
	}

	// Service-specific grants first
	if ctx != nil && ctx.Service != "" {
		if perms, ok := c.policy.Services[ctx.Service]; ok && c.checkPermissionMap(username, permission, perms) {
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

func (c *Checker) isSuperUser(username string) bool {
	return slices.Contains(c.policy.SuperUsers, username)
}

// checkPermissionMap checks the "all" wildcard key, then the specific
// permission key.
func (c *Checker) checkPermissionMap(username string, permission Permission, permMap map[string][]string) bool {
	if groups, ok := permMap[string(PermAll)]; ok && c.userInGroups(username, groups) {
		return true
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
		if slices.Contains(c.policy.UserGroups[group], username) {
			return true
		}
	}
	return false
}

// ListPermissionsForUser returns the global permissions a user holds, sorted
func (c *Checker) ListPermissionsForUser(username string) []Permission {
	if c.policy == nil || c.isSuperUser(username) {
		return []Permission{PermAll}
	}

	var perms []Permission
	for permStr, groups := range c.policy.Permissions {
		if c.userInGroups(username, groups) {
			perms = append(perms, Permission(permStr))
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
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
		if e.Context.Service != "" {
			msg += fmt.Sprintf(" for service '%s'", e.Context.Service)
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
