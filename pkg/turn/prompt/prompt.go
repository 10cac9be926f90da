// Package prompt builds system prompts by composing template fragments:
// base instructions, permission mode, sandbox mode, collaboration mode,
// environment context, AGENTS.md, and caller-supplied custom sections.
// Adapted from the teacher's pkg/harness/prompt package (kept almost
// verbatim — its composition shape already matches spec.md's ambient
// system-prompt-construction concern; the template *content* is rewritten
// for this runtime's permission/sandbox model instead of the teacher's).
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.md
var templateFS embed.FS

// Builder constructs system prompts by composing template fragments.
type Builder struct {
	// BaseInstructions is the core identity/behavior prompt.
	BaseInstructions string

	// PermissionMode controls the tool approval policy.
	// Valid values: "full-auto", "suggest", "ask-every-time"
	PermissionMode string

	// SandboxMode controls execution sandbox.
	// Valid values: "full", "network-off", "none"
	SandboxMode string

	// CollaborationMode controls the interaction style.
	// Valid values: "default", "plan"
	CollaborationMode string

	// Environment provides execution context (cwd, shell, platform).
	Environment *EnvironmentInfo

	// AgentsMD is the content of the user's AGENTS.md file.
	AgentsMD string

	// CustomSections are additional named sections appended to the prompt.
	CustomSections map[string]string
}

// EnvironmentInfo holds environment context for prompt injection.
type EnvironmentInfo struct {
	WorkingDir string
	Shell      string
	Platform   string
	OSName     string
	Sandbox    string
	Custom     map[string]string
}

// NewBuilder creates a Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{
		PermissionMode:    "suggest",
		SandboxMode:       "full",
		CollaborationMode: "default",
		CustomSections:    make(map[string]string),
	}
}

// Build assembles the complete system prompt from all configured sections.
func (b *Builder) Build() (string, error) {
	var parts []string

	base := b.BaseInstructions
	if base == "" {
		content, err := loadTemplate("base_instructions.md")
		if err != nil {
			return "", fmt.Errorf("prompt: load base instructions: %w", err)
		}
		base = content
	}
	parts = append(parts, base)

	permTpl, err := loadTemplate("permissions.md")
	if err == nil && permTpl != "" {
		rendered, err := renderTemplate("permissions", permTpl, map[string]string{"Mode": b.PermissionMode})
		if err != nil {
			return "", fmt.Errorf("prompt: render permissions: %w", err)
		}
		parts = append(parts, rendered)
	}

	sandboxTpl, err := loadTemplate("sandbox.md")
	if err == nil && sandboxTpl != "" {
		rendered, err := renderTemplate("sandbox", sandboxTpl, map[string]string{"Mode": b.SandboxMode})
		if err != nil {
			return "", fmt.Errorf("prompt: render sandbox: %w", err)
		}
		parts = append(parts, rendered)
	}

	collabTpl, err := loadTemplate("collaboration.md")
	if err == nil && collabTpl != "" {
		rendered, err := renderTemplate("collaboration", collabTpl, map[string]string{"Mode": b.CollaborationMode})
		if err != nil {
			return "", fmt.Errorf("prompt: render collaboration: %w", err)
		}
		parts = append(parts, rendered)
	}

	if b.Environment != nil {
		parts = append(parts, b.buildEnvironmentContext())
	}

	if b.AgentsMD != "" {
		parts = append(parts, fmt.Sprintf("<agents_md>\n%s\n</agents_md>", b.AgentsMD))
	}

	for name, content := range b.CustomSections {
		parts = append(parts, fmt.Sprintf("<%s>\n%s\n</%s>", name, content, name))
	}

	return strings.Join(parts, "\n\n"), nil
}

func (b *Builder) buildEnvironmentContext() string {
	env := b.Environment
	var lines []string
	lines = append(lines, "<environment_context>")
	if env.WorkingDir != "" {
		lines = append(lines, fmt.Sprintf("  <working_directory>%s</working_directory>", env.WorkingDir))
	}
	if env.Shell != "" {
		lines = append(lines, fmt.Sprintf("  <shell>%s</shell>", env.Shell))
	}
	if env.Platform != "" {
		lines = append(lines, fmt.Sprintf("  <platform>%s</platform>", env.Platform))
	}
	if env.OSName != "" {
		lines = append(lines, fmt.Sprintf("  <os>%s</os>", env.OSName))
	}
	if env.Sandbox != "" {
		lines = append(lines, fmt.Sprintf("  <sandbox>%s</sandbox>", env.Sandbox))
	}
	for k, v := range env.Custom {
		lines = append(lines, fmt.Sprintf("  <%s>%s</%s>", k, v, k))
	}
	lines = append(lines, "</environment_context>")
	return strings.Join(lines, "\n")
}

func loadTemplate(name string) (string, error) {
	data, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func renderTemplate(name, tplStr string, data any) (string, error) {
	tpl, err := template.New(name).Parse(tplStr)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// LoadTemplate loads a named template from the embedded templates
// directory, for provider-specific callers that want shared templates.
func LoadTemplate(name string) (string, error) {
	return loadTemplate(name)
}
