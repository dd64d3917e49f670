package toolregistry

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflector is shared across all MustSchema calls; it never mutates
// per-call state.
var reflector = &jsonschema.Reflector{
	ExpandedStruct: true,
	DoNotReference: true,
}

// MustSchema reflects a Go struct (the tool's argument shape) into the
// JSON Schema a provider needs to constrain its tool-call arguments.
// Panics on reflection failure, since that only happens for a
// malformed argument struct discovered at startup.
func MustSchema(argShape interface{}) []byte {
	schema := reflector.Reflect(argShape)
	b, err := json.Marshal(schema)
	if err != nil {
		panic("toolregistry: marshal schema: " + err.Error())
	}
	return b
}
