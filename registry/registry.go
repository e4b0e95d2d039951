// Package registry maps tool names to schema-typed, independently priced
// handlers. A registry instance is constructor-injected wherever tools are
// needed; there is no process-wide singleton.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/x402tools/tollgate"
	"github.com/x402tools/tollgate/schema"
)

// Handler executes a tool against schema-validated input.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// Tool is a named, schema-typed, independently priced callable. Tools are
// immutable after registration.
type Tool struct {
	// Name uniquely identifies the tool. Duplicate registration fails.
	Name string

	// Description is shown to callers and to LLMs choosing tools.
	Description string

	// InputSchema validates invocation input and is advertised to callers.
	InputSchema schema.Object

	// OutputSchema, when set, validates the handler's result before it is
	// returned. A mismatch is a tool defect, not a caller error.
	OutputSchema schema.Object

	// Pricing resolves the per-call charge: FixedPricing or FuncPricing.
	Pricing tollgate.Pricing

	// Handler runs the tool. Never exposed through Metadata.
	Handler Handler
}

// Metadata is the public projection of a Tool: everything except the
// handler. Function-valued prices appear as a dynamic marker, never as a
// serialized function.
type Metadata struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	Price        any            `json:"price,omitempty"`
}

// DynamicPrice marks a price that is computed per request.
type DynamicPrice struct {
	Dynamic bool `json:"dynamic"`
}

// Registry is an in-memory tool collection. Registration is expected to
// happen before traffic starts; the lock exists so concurrent registration
// during live reads stays safe anyway.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register stores a tool. It fails with ErrDuplicateTool if a tool with the
// same name already exists, and rejects tools missing a name or handler.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}
	if tool.Pricing == nil {
		return fmt.Errorf("tool %q has no pricing", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", tollgate.ErrDuplicateTool, tool.Name)
	}
	r.tools[tool.Name] = &tool
	return nil
}

// Get returns the tool registered under name, or false.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns a snapshot of all registered tools. Order is unspecified.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// Clear empties the registry. It exists to isolate test scenarios, not as a
// production operation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools = make(map[string]*Tool)
}

// Metadata returns the read-only projection of every registered tool.
func (r *Registry) Metadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, toolMetadata(tool))
	}
	return out
}

func toolMetadata(tool *Tool) Metadata {
	md := Metadata{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: tool.InputSchema.JSONSchema(),
	}
	if tool.OutputSchema != nil {
		md.OutputSchema = tool.OutputSchema.JSONSchema()
	}
	switch p := tool.Pricing.(type) {
	case tollgate.FixedPricing:
		md.Price = p.Value
	default:
		md.Price = DynamicPrice{Dynamic: true}
	}
	return md
}
