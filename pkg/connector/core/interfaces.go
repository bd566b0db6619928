// Package core defines the contract between the streaming pipeline and the
// store backends that reach Sage.
package core

import (
	"context"
	"database/sql"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/config"
	"github.com/naveego/plugin-sage/pkg/dispatch"
	"github.com/naveego/plugin-sage/pkg/models"
)

// Rows is a lazy, forward-only sequence of source rows
type Rows interface {
	// Next advances to the next row, returning false at the end or on error
	Next() bool
	// Row returns the current row keyed by column name
	Row() map[string]interface{}
	// Err returns the error that stopped iteration
	Err() error
	// Close releases the underlying cursor
	Close() error
}

// Backend is one connected Sage store
type Backend interface {
	// Kind names the backend (dispatch or sql)
	Kind() string

	// Discover builds the schema for one module config
	Discover(ctx context.Context, cfg busobject.ModuleConfig) (*models.Schema, error)

	// Rows opens a cursor over every row of the schema's module
	Rows(ctx context.Context, schema *models.Schema) (Rows, error)

	// Put inserts or updates one record
	Put(ctx context.Context, schema *models.Schema, record *models.Record) error

	// Close releases the session or connection pool
	Close() error
}

// WriteBackConfigurer is implemented by backends that accept host-defined
// write-back queries
type WriteBackConfigurer interface {
	ConfigureWrite(ctx context.Context, form *WriteForm) (*WriteFormResult, error)
}

// WriteForm is the host's write-back configuration form
type WriteForm struct {
	DataJSON  string `json:"dataJson"`
	StateJSON string `json:"stateJson"`
}

// WriteFormResult is the rendered form plus the schema it produces
type WriteFormResult struct {
	SchemaJSON string         `json:"schemaJson"`
	UIJSON     string         `json:"uiJson"`
	DataJSON   string         `json:"dataJson"`
	StateJSON  string         `json:"stateJson"`
	Errors     []string       `json:"errors,omitempty"`
	Schema     *models.Schema `json:"schema,omitempty"`
}

// Options carry everything a backend factory may need
type Options struct {
	Settings *config.Settings
	Config   *config.PluginConfig
	Resolver *busobject.Resolver

	// Dispatch creates automation objects for the dispatch backend
	Dispatch dispatch.Factory
	// DB replaces the connection pool the sql backend would open
	DB *sql.DB
}
