package prototype

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed presets.schema.json
var presetSchemaJSON string

var presetSchema = jsonschema.MustCompileString("presets.schema.json", presetSchemaJSON)

// LoadFile reads and validates a YAML preset document.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse validates raw YAML against the preset schema and decodes it.
func Parse(raw []byte) (*Document, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if generic == nil {
		return nil, fmt.Errorf("empty preset document")
	}
	instance, err := toJSONValue(generic)
	if err != nil {
		return nil, err
	}
	if err := presetSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("validate presets: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	return &doc, nil
}

// toJSONValue round-trips a YAML tree through encoding/json so the validator
// sees json.Number and map[string]any only.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("presets are not JSON-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
