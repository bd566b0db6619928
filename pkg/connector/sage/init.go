package sage

import (
	"github.com/naveego/plugin-sage/pkg/connector/registry"
)

func init() {
	// Register the dispatch backend factory
	_ = registry.Register(Kind, New)
}
