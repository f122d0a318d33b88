package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/vormadev/rstatic/kit/lazyget"
	"github.com/vormadev/rstatic/static"
)

const routeInfoSchemaURL = "route-info.json"

const routeInfoSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["data", "template"],
	"properties": {
		"data": {"type": "object"},
		"template": {"type": "string"}
	}
}`

var routeInfoValidator = lazyget.NewErr(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(routeInfoSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid route info schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(routeInfoSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add route info schema: %w", err)
	}
	return compiler.Compile(routeInfoSchemaURL)
})

// Payload is the wire form of a route: {data, template}.
type Payload struct {
	Data     map[string]any `json:"data"`
	Template string         `json:"template"`

	path string
}

// ValidatePayload checks raw against the route info shape and decodes it.
// raw may be any JSON-marshalable value.
func ValidatePayload(path string, raw any) (Payload, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return Payload{}, &static.ValidationError{Path: path, Err: err}
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return Payload{}, &static.ValidationError{Path: path, Err: err}
	}

	schema, err := routeInfoValidator()
	if err != nil {
		return Payload{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return Payload{}, &static.ValidationError{Path: path, Err: err}
	}

	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, &static.ValidationError{Path: path, Err: err}
	}
	return p, nil
}
