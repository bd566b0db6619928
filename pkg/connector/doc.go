// Package connector groups the store backends of the plugin.
//
// The package is organized into several sub-packages:
//
//   - core: the Backend and Rows interfaces the pipeline drives, plus the
//     optional WriteBackConfigurer for backends with host-defined writes.
//
//   - registry: a factory registry keyed by backend kind. Backends register
//     themselves from init, so importing a backend package is enough to make
//     it available to the plugin.
//
//   - sage: the dispatch backend. It opens a Sage session through COM
//     automation, walks business objects with a cursor and writes through
//     SetKey/SetValue/Write.
//
//   - sqlstore: the SQL backend. It discovers tables from result column
//     types, scans them lazily and writes by insert with an update fallback
//     on duplicate keys.
//
// # Usage
//
//	import (
//	    "github.com/naveego/plugin-sage/pkg/connector/registry"
//	    _ "github.com/naveego/plugin-sage/pkg/connector/sqlstore"
//	)
//
//	backend, err := registry.Create(ctx, "sql", core.Options{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	schema, err := backend.Discover(ctx, moduleConfig)
package connector
