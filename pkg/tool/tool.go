// Package tool maps tool names to handlers, JSON schemas, and safety
// classes. Grounded on the teacher's ToolHandler/ToolSpec interfaces
// (pkg/harness/harness.go) generalized from one harness's tool set to a
// provider-agnostic registry shared by the scheduler and turn runner.
package tool

import (
	"context"
	"fmt"
)

// SafetyClass declares whether a tool may run concurrently with other
// tools in the same batch (Safe) or must run serially (Unsafe).
type SafetyClass int

const (
	Safe SafetyClass = iota
	Unsafe
)

func (c SafetyClass) String() string {
	if c == Unsafe {
		return "unsafe"
	}
	return "safe"
}

// Call is the invocation schema the core supplies to a Handler, mirroring
// the wire shape in spec.md §6: {call_id, session_id, cwd, arguments,
// cancellation_token, emit_progress}.
type Call struct {
	ID           string
	SessionID    string
	WorkingDir   string
	Name         string
	Arguments    []byte // raw JSON
	EmitProgress func(text string)
}

// ContextModifier is a side-effect a tool asks the turn runner to apply
// before its next request: a record of a file read (for change detection)
// or a newly-approved permission pattern.
type ContextModifier struct {
	FileRead          *FileReadModifier
	PermissionGranted *PermissionGrantedModifier
}

type FileReadModifier struct {
	Path    string
	Content string
}

type PermissionGrantedModifier struct {
	Tool    string
	Pattern string
}

// Result is what a Handler returns for one Call.
type Result struct {
	CallID    string
	Text      string
	IsError   bool
	Modifiers []ContextModifier
}

// Handler executes one tool's calls.
type Handler interface {
	Handle(ctx context.Context, call Call) (Result, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, call Call) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, call Call) (Result, error) { return f(ctx, call) }

// Descriptor is everything the registry and scheduler need to know about
// one registered tool: its handler, schema, and safety classification.
type Descriptor struct {
	Name           string
	Description    string
	Parameters     map[string]any // JSON-schema object, normalized strict on registration
	Safety         SafetyClass
	ReadOnly       bool
	MaxResultChars int // 0 = package default (see shellexec truncation bounds)

	Handler Handler
}

// Registry maps tool names to their Descriptor. Not safe for concurrent
// registration; registration happens once at startup, lookups happen
// concurrently thereafter and are safe (the underlying map is never
// mutated after Freeze).
type Registry struct {
	descriptors map[string]Descriptor
	frozen      bool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds a tool descriptor, normalizing its parameter schema to
// strict JSON-schema object rules (see schema.go) before storing it.
// Returns an error if the name is already registered or the registry has
// been frozen.
func (r *Registry) Register(d Descriptor) error {
	if r.frozen {
		return fmt.Errorf("tool: registry is frozen, cannot register %q", d.Name)
	}
	if d.Name == "" {
		return fmt.Errorf("tool: descriptor missing name")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %q: missing handler", d.Name)
	}
	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("tool %q: already registered", d.Name)
	}
	if d.Parameters != nil {
		d.Parameters = NormalizeStrictSchemaNode(d.Parameters).(map[string]any)
	}
	r.descriptors[d.Name] = d
	return nil
}

// Freeze prevents further registration, signaling the registry is ready
// for concurrent lookup use.
func (r *Registry) Freeze() { r.frozen = true }

// Lookup returns the descriptor for name, or ok=false if unregistered.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// List returns every registered descriptor in no particular order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	return out
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		out = append(out, name)
	}
	return out
}
