package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RunFunc executes a tool with the raw JSON arguments the model supplied.
// The returned string becomes the tool-call output fed back to the model.
type RunFunc func(ctx context.Context, args json.RawMessage) (string, error)

// ToolDef declares one member of the closed tool set: a name, a
// description for the model, a JSON schema for its arguments, and the
// function that executes it. Tools are dispatched by name lookup — there
// is no reflection and no open registration at runtime.
type ToolDef struct {
	Name        string
	Description string
	// Parameters is the JSON schema advertised to the model for the tool's
	// arguments.
	Parameters map[string]any
	Run        RunFunc

	compiled *jsonschema.Schema
}

// NewToolDef builds a ToolDef, compiling the parameter schema so that the
// arguments of every call can be validated before dispatch. A schema that
// does not compile is a programming error and is reported at construction
// time.
func NewToolDef(name, description string, parameters map[string]any, run RunFunc) (ToolDef, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return ToolDef{}, fmt.Errorf("llm: marshal schema for tool %q: %w", name, err)
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return ToolDef{}, fmt.Errorf("llm: compile schema for tool %q: %w", name, err)
	}
	return ToolDef{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Run:         run,
		compiled:    compiled,
	}, nil
}

// validateArgs checks the model-supplied arguments against the compiled
// parameter schema.
func (d ToolDef) validateArgs(args json.RawMessage) error {
	if d.compiled == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return d.compiled.Validate(v)
}
