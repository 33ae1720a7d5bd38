// Package models defines the wire data structures exchanged with a Jobson server.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Input type tags understood by the editors.
const (
	InputTypeString      = "string"
	InputTypeInt         = "int"
	InputTypeLong        = "long"
	InputTypeFloat       = "float"
	InputTypeDouble      = "double"
	InputTypeSelect      = "select"
	InputTypeFile        = "file"
	InputTypeFileArray   = "file[]"
	InputTypeStringArray = "string[]"
	InputTypeSQL         = "sql"
)

// SupportedInputTypes lists every type tag an editor exists for, in display order.
var SupportedInputTypes = []string{
	InputTypeString,
	InputTypeSelect,
	InputTypeStringArray,
	InputTypeSQL,
	InputTypeInt,
	InputTypeLong,
	InputTypeFloat,
	InputTypeDouble,
	InputTypeFile,
	InputTypeFileArray,
}

// RESTLink is a hypermedia link attached to API responses.
type RESTLink struct {
	Href string `json:"href"`
}

// JobSpecSummary is one entry of GET /v1/specs.
type JobSpecSummary struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Links       map[string]RESTLink `json:"_links,omitempty"`
}

// JobSpecSummaryCollection is the envelope returned by GET /v1/specs.
type JobSpecSummaryCollection struct {
	Entries []JobSpecSummary    `json:"entries"`
	Links   map[string]RESTLink `json:"_links,omitempty"`
}

// JobSpec is a full job specification (GET /v1/specs/{id}).
type JobSpec struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	ExpectedInputs []ExpectedInput `json:"expectedInputs"`
}

// Input returns the expected input with the given id.
func (s *JobSpec) Input(id string) (ExpectedInput, bool) {
	for _, in := range s.ExpectedInputs {
		if in.ID == id {
			return in, true
		}
	}
	return ExpectedInput{}, false
}

// ExpectedInput is a single named, typed field declared by a job spec.
type ExpectedInput struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
	Options     []SelectOption  `json:"options,omitempty"`
	Tables      []TableSchema   `json:"tables,omitempty"`
	Min         *json.Number    `json:"min,omitempty"`
	Max         *json.Number    `json:"max,omitempty"`
}

// DisplayName returns the human name of the input, falling back to its id.
func (e ExpectedInput) DisplayName() string {
	if strings.TrimSpace(e.Name) != "" {
		return e.Name
	}
	return e.ID
}

// HasDefault reports whether the input declares a non-empty default.
// An absent default, JSON null and the empty string all count as empty.
func (e ExpectedInput) HasDefault() bool {
	raw := bytes.TrimSpace(e.Default)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", `""`:
		return false
	}
	return true
}

// DefaultValue decodes the declared default. Numbers decode as json.Number.
func (e ExpectedInput) DefaultValue() (any, bool) {
	if !e.HasDefault() {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(e.Default))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// SelectOption is one choice of a select input.
type SelectOption struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Label returns the option's display name, falling back to its id.
func (o SelectOption) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ID
}

// TableSchema describes a table a sql input may query.
type TableSchema struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Columns     []ColumnSchema `json:"columns"`
}

// Column returns the column with the given id.
func (t TableSchema) Column(id string) (ColumnSchema, bool) {
	for _, c := range t.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// ColumnSchema describes one column of a TableSchema.
type ColumnSchema struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}
