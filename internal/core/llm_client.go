package core

import (
	"context"
	"errors"
)

// LLMClient defines the minimal interface pipeline stages use to call an LLM.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SchemaCapableLLMClient is implemented by clients whose provider can enforce
// a JSON schema on the response at the API level.
type SchemaCapableLLMClient interface {
	LLMClient
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
}

// schemaCapability lets a client report at runtime whether schema enforcement
// is actually available (some providers expose the method but reject schemas).
type schemaCapability interface {
	SchemaCapable() bool
}

// ErrSchemaNotSupported is returned by CompleteWithSchema when the provider
// rejects schema enforcement; callers fall back to prompt-level JSON
// instructions.
var ErrSchemaNotSupported = errors.New("schema validation not supported")

// AsSchemaCapable returns the client as a SchemaCapableLLMClient if it both
// implements the interface and reports the capability as available.
func AsSchemaCapable(c LLMClient) (SchemaCapableLLMClient, bool) {
	sc, ok := c.(SchemaCapableLLMClient)
	if !ok {
		return nil, false
	}
	if probe, ok := c.(schemaCapability); ok && !probe.SchemaCapable() {
		return nil, false
	}
	return sc, true
}
