package config

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/convstreams/errors"
)

// CategoryQueryBuilder is the component category for query builders.
const CategoryQueryBuilder = "queryBuilder"

// componentSchema constrains a ComponentConfiguration block. Parameter
// payloads stay free-form; the envelope is what must hold its shape.
const componentSchema = `{
	"type": "object",
	"required": ["category", "type"],
	"properties": {
		"category": {"type": "string", "minLength": 1},
		"type": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"enabled": {"type": "boolean"},
		"unbound": {"type": "boolean"},
		"configuration": {"type": "object"}
	},
	"additionalProperties": false
}`

var componentSchemaLoader = gojsonschema.NewStringLoader(componentSchema)

// ComponentConfiguration configures one pluggable component instance for a
// client. The triple (category, type, name) identifies the instance; the
// same builder type may run several times with different names and
// parameters. Unbound instances are parked: they stay in the
// configuration but produce nothing until bound.
type ComponentConfiguration struct {
	Category      string         `json:"category"`
	Type          string         `json:"type"`
	Name          string         `json:"name,omitempty"`
	Enabled       bool           `json:"enabled"`
	Unbound       bool           `json:"unbound,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// Active reports whether the instance should take part in processing.
func (cc *ComponentConfiguration) Active() bool {
	return cc.Enabled && !cc.Unbound
}

// DisplayName returns the instance name, falling back to the type.
func (cc *ComponentConfiguration) DisplayName() string {
	if cc.Name != "" {
		return cc.Name
	}
	return cc.Type
}

// Param returns a string parameter from the configuration payload.
func (cc *ComponentConfiguration) Param(key, fallback string) string {
	if v, ok := cc.Configuration[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// FloatParam returns a numeric parameter from the configuration payload.
func (cc *ComponentConfiguration) FloatParam(key string, fallback float64) float64 {
	switch v := cc.Configuration[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// Validate checks the block against the component schema.
func (cc *ComponentConfiguration) Validate() error {
	raw, err := json.Marshal(cc)
	if err != nil {
		return errors.WrapInvalid(err, "config", "Validate", "marshal component")
	}

	result, err := gojsonschema.Validate(componentSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.WrapInvalid(err, "config", "Validate", "component schema")
	}
	if !result.Valid() {
		details := ""
		for _, desc := range result.Errors() {
			if details != "" {
				details += "; "
			}
			details += desc.String()
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, details),
			"config", "Validate", "component "+cc.DisplayName())
	}
	return nil
}

// ClientConfiguration groups the component configurations of one client.
type ClientConfiguration struct {
	Client     string                   `json:"client"`
	Components []ComponentConfiguration `json:"components,omitempty"`
}

// Validate checks every component block.
func (cc *ClientConfiguration) Validate() error {
	for i := range cc.Components {
		if err := cc.Components[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Instances returns the active component configurations matching category
// and type. Disabled and unbound instances are filtered out.
func (cc *ClientConfiguration) Instances(category, componentType string) []*ComponentConfiguration {
	if cc == nil {
		return nil
	}
	var out []*ComponentConfiguration
	for i := range cc.Components {
		c := &cc.Components[i]
		if c.Category == category && c.Type == componentType && c.Active() {
			out = append(out, c)
		}
	}
	return out
}
