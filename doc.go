// Package pluginsage is a publisher plugin that exposes Sage 100 business
// objects to a data hub host.
//
// The host launches the plugin, reads the handshake line from stdout and
// talks to it over gRPC. Each call runs against one connected store backend:
//
//   - dispatch: the Sage 100 COM automation layer (ProvideX script object,
//     session and business objects), reached through go-ole on Windows.
//   - sql: Sage tables reached through database/sql, either the MySQL
//     protocol of an ODBC bridge or PostgreSQL through pgx.
//
// # Layout
//
//   - cmd/plugin-sage: CLI entry point (serve, modules, version)
//   - internal/server: the pub.Publisher gRPC service with a JSON codec
//   - internal/plugin: connection state and the host operations
//   - internal/pipeline: discovery fan-out, read streaming and SLA-bounded writes
//   - pkg/connector: the backend contract, registry and both backends
//   - pkg/session, pkg/cursor, pkg/dispatch: the automation session and
//     business object cursor
//   - pkg/busobject: logical module names mapped to Sage business objects
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/observability:
//     process configuration and the ambient stack
//
// # Quick Start
//
//	plugin-sage serve --address 127.0.0.1:0 --log-level debug
//
// Settings sent on Connect name the Sage login and the modules to publish:
//
//	{
//	  "Username": "DEV",
//	  "Password": "secret",
//	  "CompanyCode": "ABC",
//	  "HomePath": "C:\\Sage\\Sage 100 Advanced\\MAS90\\Home",
//	  "ModulesList": ["Customer Information", "Sales Orders"]
//	}
package pluginsage
