package sqlstore

import (
	"github.com/naveego/plugin-sage/pkg/connector/registry"
)

func init() {
	// Register the SQL backend factory
	_ = registry.Register(Kind, New)
}
