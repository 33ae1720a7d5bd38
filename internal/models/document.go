package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// documentJSON returns data unchanged when it is JSON and converts it
// otherwise, treating it as YAML.
func documentJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if json.Valid(trimmed) {
		return trimmed, nil
	}

	var doc any
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON or YAML: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("expected a mapping at the top level, got %T", doc)
	}
	return json.Marshal(doc)
}

// DecodeJobSpec parses a JSON or YAML job spec document.
func DecodeJobSpec(data []byte) (JobSpec, error) {
	doc, err := documentJSON(data)
	if err != nil {
		return JobSpec{}, fmt.Errorf("failed to decode job spec: %w", err)
	}
	var spec JobSpec
	if err := json.Unmarshal(doc, &spec); err != nil {
		return JobSpec{}, fmt.Errorf("failed to decode job spec: %w", err)
	}
	if spec.ID == "" {
		return JobSpec{}, fmt.Errorf("failed to decode job spec: missing id")
	}
	return spec, nil
}
