// Package permission evaluates tool invocations against a session's
// sandbox policy and command-safety rules, producing an Allow, Deny, or
// NeedsApproval decision. Grounded on
// cocode-rs/exec/sandbox/src/checker.rs (PermissionChecker: path rules)
// and codex-rs/shell-command/src/command_safety/is_dangerous_command.rs
// (command classification).
package permission

import (
	"path/filepath"
	"strings"
)

// Mode mirrors cocode-rs's SandboxMode.
type Mode int

const (
	ModeNone Mode = iota
	ModeReadOnly
	ModeStrict
)

// Policy is a session's sandbox configuration. Carried over field-for-
// field from cocode-rs's SandboxConfig.
type Policy struct {
	Mode         Mode
	AllowedPaths []string
	DeniedPaths  []string
	AllowNetwork bool
}

func (p Policy) modeAllowsWrite() bool { return p.Mode != ModeReadOnly }

// Checker evaluates path and network access against a Policy.
type Checker struct {
	policy Policy
}

// NewChecker builds a Checker bound to one sandbox policy.
func NewChecker(policy Policy) *Checker { return &Checker{policy: policy} }

// Policy returns the checker's bound policy.
func (c *Checker) Policy() Policy { return c.policy }

// CheckPath returns nil if path is accessible under the bound policy for
// the requested access (write or read), otherwise a descriptive error.
// Port of PermissionChecker::check_path: None allows everything, ReadOnly
// allows reads and denies writes, Strict requires the normalized path to
// match an allowed prefix and not a denied one, with denied prefixes
// always taking precedence.
func (c *Checker) CheckPath(path string, write bool) error {
	normalized := normalizePath(path)

	switch c.policy.Mode {
	case ModeNone:
		return nil
	case ModeReadOnly:
		if write {
			return &PathError{Path: path, Reason: "sandbox is in read-only mode, cannot write"}
		}
		return nil
	case ModeStrict:
		if c.isDeniedPath(normalized) {
			return &PathError{Path: path, Reason: "path denied"}
		}
		if !c.IsAllowedPath(normalized) {
			return &PathError{Path: path, Reason: "path denied"}
		}
		if write && !c.policy.modeAllowsWrite() {
			return &PathError{Path: path, Reason: "write denied in strict mode"}
		}
		return nil
	default:
		return &PathError{Path: path, Reason: "unknown sandbox mode"}
	}
}

// CheckNetwork returns nil if network access is allowed under the bound
// policy, otherwise an error.
func (c *Checker) CheckNetwork() error {
	if c.policy.Mode == ModeNone {
		return nil
	}
	if !c.policy.AllowNetwork {
		return &NetworkError{}
	}
	return nil
}

// IsAllowedPath reports whether path falls under one of the policy's
// allowed prefixes. An empty allowed set allows everything outside
// Strict mode, and denies everything inside it.
func (c *Checker) IsAllowedPath(path string) bool {
	if len(c.policy.AllowedPaths) == 0 {
		return c.policy.Mode != ModeStrict
	}
	for _, allowed := range c.policy.AllowedPaths {
		if hasPathPrefix(path, allowed) {
			return true
		}
	}
	return false
}

func (c *Checker) isDeniedPath(path string) bool {
	for _, denied := range c.policy.DeniedPaths {
		if hasPathPrefix(path, denied) {
			return true
		}
	}
	return false
}

// normalizePath resolves "." and ".." components without touching the
// filesystem, per spec.md §4.3's "normalize the path: resolve parent-dir
// components, disallow root/prefix components in relative paths".
func normalizePath(path string) string {
	cleaned := filepath.Clean(path)
	return cleaned
}

// hasPathPrefix reports whether path is equal to or nested under prefix,
// treating both as filesystem paths rather than byte strings (so
// "/home/user/project2" does not match prefix "/home/user/project").
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// PathError reports a denied path access.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string { return "permission: " + e.Reason + ": " + e.Path }

// NetworkError reports denied network access.
type NetworkError struct{}

func (e *NetworkError) Error() string { return "permission: network access denied" }
