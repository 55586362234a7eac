package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weight is one entry of an ordered field -> weight mapping
type Weight struct {
	Name  string
	Value int
}

// WeightMap is a field -> weight mapping that keeps declaration order
type WeightMap []Weight

// UnmarshalYAML decodes a mapping node without losing key order
func (m *WeightMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of field to weight", node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return configErr("", key.Value, "declared twice (line %d)", key.Line)
		}
		seen[key.Value] = true

		var weight int
		if err := val.Decode(&weight); err != nil {
			return fmt.Errorf("line %d: weight of %q must be an integer: %w", val.Line, key.Value, err)
		}
		*m = append(*m, Weight{Name: key.Value, Value: weight})
	}
	return nil
}

// TypeDefinition is the declaration of one document type
type TypeDefinition struct {
	Name        string    `yaml:"-"`
	Fields      WeightMap `yaml:"fields"`
	ExtraFields WeightMap `yaml:"extra_fields"`
	RefineBy    string    `yaml:"refine_by"`
}

// TypeList is the ordered "types" section
type TypeList []TypeDefinition

// UnmarshalYAML decodes the types mapping in declaration order
func (l *TypeList) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: types must be a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		td := TypeDefinition{Name: key.Value}
		if val.Tag != "!!null" {
			if err := val.Decode(&td); err != nil {
				return fmt.Errorf("type %q: %w", key.Value, err)
			}
			td.Name = key.Value
		}
		*l = append(*l, td)
	}
	return nil
}

// Definition is a schema declaration before validation
type Definition struct {
	Slots         int       `yaml:"slots"`
	DefaultFields WeightMap `yaml:"default_fields"`
	Default       WeightMap `yaml:"default"`
	Types         TypeList  `yaml:"types"`
}

// Parse decodes and validates a YAML schema declaration
func Parse(data []byte) (*Schema, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return New(def)
}

// Load reads a YAML schema declaration from disk
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}
