package aggregates

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type definitionsFile struct {
	Aggregates []Definition `yaml:"aggregates"`
}

// ParseDefinitions decodes a YAML document with a top-level "aggregates" list. Each
// entry is normalized and validated.
func ParseDefinitions(raw []byte) ([]Definition, error) {
	const op = "aggregates.ParseDefinitions"
	var doc definitionsFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, NewError(CodeValidation, op, "decode definitions", err)
	}
	out := make([]Definition, 0, len(doc.Aggregates))
	for i, d := range doc.Aggregates {
		d = d.Normalize()
		if err := d.Validate(); err != nil {
			return nil, NewError(CodeValidation, op, fmt.Sprintf("aggregates[%d]: %v", i, err), err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadDefinitionsFile reads path. An empty path yields no definitions.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aggregates file: %w", err)
	}
	return ParseDefinitions(raw)
}
