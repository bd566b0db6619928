package server

import (
	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/models"
)

// ConnectRequest carries the host settings blob
type ConnectRequest struct {
	SettingsJSON string `json:"settingsJson"`
}

// DiscoverSchemasRequest selects ALL or REFRESH discovery
type DiscoverSchemasRequest struct {
	Mode      string           `json:"mode"`
	ToRefresh []*models.Schema `json:"toRefresh,omitempty"`
}

// DiscoverSchemasResponse lists the discovered schemas
type DiscoverSchemasResponse struct {
	Schemas []*models.Schema `json:"schemas"`
}

// ReadRequest starts a read stream. Limit 0 reads every record.
type ReadRequest struct {
	Schema *models.Schema `json:"schema"`
	Limit  int            `json:"limit"`
}

// ConfigureWriteRequest carries the host's current form state
type ConfigureWriteRequest struct {
	Form *core.WriteForm `json:"form"`
}

// ConfigurationForm is the rendered write-back form
type ConfigurationForm struct {
	SchemaJSON string   `json:"schemaJson"`
	UIJSON     string   `json:"uiJson"`
	DataJSON   string   `json:"dataJson"`
	StateJSON  string   `json:"stateJson"`
	Errors     []string `json:"errors,omitempty"`
}

// ConfigureWriteResponse is the form plus the write schema it produced
type ConfigureWriteResponse struct {
	Form   ConfigurationForm `json:"form"`
	Schema *models.Schema    `json:"schema,omitempty"`
}

// PrepareWriteRequest sets the schema and commit SLA of the next write
// stream
type PrepareWriteRequest struct {
	Schema           *models.Schema `json:"schema"`
	CommitSLASeconds int            `json:"commitSlaSeconds"`
}

// PrepareWriteResponse acknowledges PrepareWrite
type PrepareWriteResponse struct{}

// DisconnectRequest ends the connection
type DisconnectRequest struct{}

// DisconnectResponse acknowledges Disconnect
type DisconnectResponse struct{}
