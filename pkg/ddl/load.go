package ddl

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema is a set of table definitions as read from a YAML file.
type Schema struct {
	Tables []Table `yaml:"tables"`
}

// Parse decodes a YAML schema.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &s, nil
}

// Load reads a YAML schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data)
}

// Statements returns one CREATE TABLE statement per table, in order.
func (s *Schema) Statements() ([]string, error) {
	out := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		stmt, err := CreateTable(t)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		out = append(out, stmt)
	}
	return out, nil
}
