package models

import (
	"strings"

	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/json"
)

// PropertyType is the inferred or declared type of a property
type PropertyType string

const (
	PropertyTypeString   PropertyType = "STRING"
	PropertyTypeInteger  PropertyType = "INTEGER"
	PropertyTypeFloat    PropertyType = "FLOAT"
	PropertyTypeBool     PropertyType = "BOOL"
	PropertyTypeDatetime PropertyType = "DATETIME"
	PropertyTypeJSON     PropertyType = "JSON"
)

// Direction tells the host which way data may flow for a schema
type Direction string

const (
	DirectionRead      Direction = "READ"
	DirectionWrite     Direction = "WRITE"
	DirectionReadWrite Direction = "READ_WRITE"
)

// Property describes one column of a schema
type Property struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Type            PropertyType `json:"type"`
	TypeAtSource    string       `json:"typeAtSource,omitempty"`
	IsKey           bool         `json:"isKey"`
	IsCreateCounter bool         `json:"isCreateCounter"`
	IsUpdateCounter bool         `json:"isUpdateCounter"`
	IsNullable      bool         `json:"isNullable"`
}

// Schema describes one logical dataset. PublisherMetaJSON routes the
// schema back to its module and is round-tripped untouched by the host.
type Schema struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Properties        []Property `json:"properties"`
	PublisherMetaJSON string     `json:"publisherMetaJson"`
	DataFlowDirection Direction  `json:"dataFlowDirection"`
	// Query is the write-back statement of a schema built by ConfigureWrite
	Query string `json:"query,omitempty"`
}

// Property returns the property with the given ID
func (s *Schema) Property(id string) (Property, bool) {
	for _, p := range s.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// KeyIDs returns the IDs of key properties in schema order
func (s *Schema) KeyIDs() []string {
	var keys []string
	for _, p := range s.Properties {
		if p.IsKey {
			keys = append(keys, p.ID)
		}
	}
	return keys
}

// Module decodes the module name carried in the schema metadata
func (s *Schema) Module() (string, error) {
	meta, err := ParseSchemaMeta(s.PublisherMetaJSON)
	if err != nil {
		return "", err
	}
	return meta.Module, nil
}

// SchemaMeta is the metadata blob attached to discovered schemas
type SchemaMeta struct {
	Module string `json:"Module"`
}

// EncodeSchemaMeta builds the {"Module":"<name>"} blob
func EncodeSchemaMeta(module string) string {
	encoded, err := json.MarshalString(SchemaMeta{Module: module})
	if err != nil {
		// a struct of one string always encodes
		panic(err)
	}
	return encoded
}

// ParseSchemaMeta decodes a metadata blob
func ParseSchemaMeta(raw string) (SchemaMeta, error) {
	var meta SchemaMeta
	if strings.TrimSpace(raw) == "" {
		return meta, errors.New(errors.ErrorTypeConfig, "schema metadata is empty")
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return meta, errors.Wrap(err, errors.ErrorTypeConfig, "schema metadata is not valid JSON")
	}
	if meta.Module == "" {
		return meta, errors.New(errors.ErrorTypeConfig, "schema metadata does not name a module")
	}
	return meta, nil
}
