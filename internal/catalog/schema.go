package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	invopop "github.com/invopop/jsonschema"
	jsv5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// compiledSchema builds the JSON Schema for a parameter struct using
// invopop/jsonschema (spec §9 "needed for the bridge collaborator"), then
// compiles it with santhosh-tekuri/jsonschema/v5 for strict runtime
// validation (spec §9 "strict parsing needed by the executor").
type compiledSchema struct {
	doc      map[string]any
	compiled *jsv5.Schema
}

var reflector = &invopop.Reflector{
	ExpandedStruct: true,
	DoNotReference: true,
}

func generateSchema(name string, paramType any) (*compiledSchema, error) {
	schema := reflector.ReflectFromType(reflect.TypeOf(paramType))
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}

	compiler := jsv5.NewCompiler()
	resourceURL := "catalog://" + name + ".json"
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}

	return &compiledSchema{doc: doc, compiled: compiled}, nil
}

func (s *compiledSchema) validate(params map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.compiled.Validate(v)
}

var schemaCache sync.Map // name -> *compiledSchema

func schemaFor(name string, paramType any) (*compiledSchema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*compiledSchema), nil
	}
	s, err := generateSchema(name, paramType)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(name, s)
	return s, nil
}
