// Package toolservice holds the registry of tools the gateway can execute
// server-side: built-in retrieval tools (file_search, agentic_search) and
// image_generation. MCP tools are not registered here; the tool handler
// wraps each MCP call in a FunctionTool at call time. It is the ToolService referenced by
// the lookup the tool handler classifies calls against.
package toolservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// FunctionTool is one server-executable tool: a JSON Schema for its
// arguments plus the handler that runs it. Schema is validated with
// santhosh-tekuri/jsonschema before Execute is called, so handlers can
// assume well-formed input.
type FunctionTool struct {
	Name        string
	Description string
	Schema      models.JSONObject
	Native      bool
	Terminal    bool // true only for image_generation
	Execute     func(ctx context.Context, args json.RawMessage) (string, error)

	compiled *jsonschema.Schema
}

// Validate checks args against Schema, compiling the schema lazily and
// caching the compiled form on first use.
func (t *FunctionTool) Validate(args json.RawMessage) error {
	if t.Schema == nil {
		return nil
	}
	if t.compiled == nil {
		compiled, err := compileSchema(t.Schema)
		if err != nil {
			return fmt.Errorf("toolservice: invalid schema for %s: %w", t.Name, err)
		}
		t.compiled = compiled
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("toolservice: arguments for %s are not valid JSON: %w", t.Name, err)
	}
	if err := t.compiled.Validate(v); err != nil {
		return fmt.Errorf("toolservice: arguments for %s failed schema validation: %w", t.Name, err)
	}
	return nil
}

func compileSchema(schema models.JSONObject) (*jsonschema.Schema, error) {
	data, err := json.Marshal(map[string]any(schema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// ToolContext carries per-request state a native tool needs to execute:
// the vector stores in scope and the caller's bearer credential, so
// tools that themselves call upstream (none today, but the contract leaves
// room for it) can do so on the caller's behalf.
type ToolContext struct {
	Credential string

	// VectorStoreIDs scopes the retrieval builtins to the stores the
	// client attached to its tool declaration for this request.
	VectorStoreIDs []string
}

// Service is the gateway's ToolService: a registry of native tools plus
// alias resolution for client-declared duplicate tool names.
type Service struct {
	tools      map[string]*FunctionTool
	contextual map[string]func(*ToolContext) *FunctionTool
}

func New() *Service {
	return &Service{
		tools:      make(map[string]*FunctionTool),
		contextual: make(map[string]func(*ToolContext) *FunctionTool),
	}
}

// Register adds or replaces a native tool.
func (s *Service) Register(tool *FunctionTool) {
	s.tools[tool.Name] = tool
}

// RegisterContextual adds a tool whose behavior depends on per-request
// state: build is called on every lookup with that request's ToolContext.
// The retrieval builtins use this to bind the client's vector_store_ids.
func (s *Service) RegisterContextual(name string, build func(*ToolContext) *FunctionTool) {
	s.contextual[name] = build
}

// GetFunctionTool resolves name to a native FunctionTool, or (nil, false)
// if the name is not server-executable (client-side tool).
func (s *Service) GetFunctionTool(name string, tctx *ToolContext) (*FunctionTool, bool) {
	if build, ok := s.contextual[name]; ok {
		if tctx == nil {
			tctx = &ToolContext{}
		}
		return build(tctx), true
	}
	t, ok := s.tools[name]
	return t, ok
}

// BuildAliasMap maps each tool name a client declared in its request onto
// the underlying native tool it should resolve to, so two client-declared
// tools of the same builtin Type (e.g. two file_search tools scoped to
// different vector stores, each given a distinct Name) both dispatch to the
// same native implementation while keeping their own name in the
// conversation log.
func (s *Service) BuildAliasMap(tools []models.ToolDefinition) map[string]string {
	aliases := make(map[string]string, len(tools))
	for _, t := range tools {
		switch t.Type {
		case "file_search", "agentic_search", "image_generation":
			if t.Name != "" && t.Name != t.Type {
				aliases[t.Name] = t.Type
			}
		}
	}
	return aliases
}

// ResolveAlias returns the canonical tool name to look up in the registry,
// following the alias map built for this request.
func ResolveAlias(aliases map[string]string, name string) string {
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}
