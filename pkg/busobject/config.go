// Package busobject maps logical data-source names to the Sage module,
// business object, task and table needed to open a cursor.
package busobject

import (
	"sort"
	"sync"

	"github.com/naveego/plugin-sage/pkg/errors"
)

// ModuleConfig identifies everything needed to open a cursor for one
// logical data source. It is never mutated after construction.
type ModuleConfig struct {
	LogicalName string   `yaml:"name" json:"name"`
	Module      string   `yaml:"module" json:"module"`
	BusObject   string   `yaml:"bus_object" json:"bus_object"`
	Task        string   `yaml:"task" json:"task"`
	Table       string   `yaml:"table" json:"table"`
	Keys        []string `yaml:"keys" json:"keys"`
	// IsDetails opens the oLines child of the business object
	IsDetails bool `yaml:"is_details" json:"is_details"`
	// KeyGenerator is the by-ref call that yields the next key on insert
	KeyGenerator string `yaml:"key_generator" json:"key_generator"`
	// WriteOnly configs are offered as write-back schemas only
	WriteOnly bool `yaml:"write_only" json:"write_only"`
}

const (
	SalesOrders          = "Sales Orders"
	SalesOrderDetail     = "Sales Order Detail"
	CustomerInformation  = "Customer Information"
	InvoiceHistory       = "Invoice History"
	InvoiceHistoryDetail = "Invoice History Detail"
	ItemInformation      = "Item Information"
	ShippingAddresses    = "Shipping Addresses"
	// SalesOrdersInsert is the write-only sales order entry schema
	SalesOrdersInsert = "Sales Orders Insert"
)

var defaults = []ModuleConfig{
	{
		LogicalName:  SalesOrders,
		Module:       "S/O",
		BusObject:    "SO_SalesOrder_bus",
		Task:         "SO_SalesOrder_ui",
		Table:        "SO_SalesOrderHeader",
		Keys:         []string{"SalesOrderNo"},
		KeyGenerator: "nGetNextSalesOrderNo",
	},
	{
		LogicalName: SalesOrderDetail,
		Module:      "S/O",
		BusObject:   "SO_SalesOrder_bus",
		Task:        "SO_SalesOrder_ui",
		Table:       "SO_SalesOrderDetail",
		Keys:        []string{"SalesOrderNo", "LineKey"},
		IsDetails:   true,
	},
	{
		LogicalName: CustomerInformation,
		Module:      "A/R",
		BusObject:   "AR_Customer_bus",
		Task:        "AR_Customer_ui",
		Table:       "AR_Customer",
		Keys:        []string{"ARDivisionNo", "CustomerNo"},
	},
	{
		LogicalName: InvoiceHistory,
		Module:      "A/R",
		BusObject:   "AR_InvoiceHistoryInquiry_bus",
		Task:        "AR_InvoiceHistoryInquiry_ui",
		Table:       "AR_InvoiceHistoryHeader",
		Keys:        []string{"InvoiceNo", "HeaderSeqNo"},
	},
	{
		LogicalName: InvoiceHistoryDetail,
		Module:      "A/R",
		BusObject:   "AR_InvoiceHistoryInquiryDetail_bus",
		Task:        "AR_InvoiceHistoryInquiry_ui",
		Table:       "AR_InvoiceHistoryDetail",
		Keys:        []string{"InvoiceNo", "HeaderSeqNo", "DetailSeqNo"},
	},
	{
		LogicalName: ItemInformation,
		Module:      "C/I",
		BusObject:   "CI_ItemCode_bus",
		Task:        "CI_ItemCode_ui",
		Table:       "CI_Item",
		Keys:        []string{"ItemCode"},
	},
	{
		LogicalName: ShippingAddresses,
		Module:      "S/O",
		BusObject:   "SO_ShipToAddress_bus",
		Task:        "SO_ShipToAddress_ui",
		Table:       "SO_ShipToAddress",
		Keys:        []string{"ARDivisionNo", "CustomerNo", "ShipToCode"},
	},
	{
		LogicalName:  SalesOrdersInsert,
		Module:       "S/O",
		BusObject:    "SO_SalesOrder_bus",
		Task:         "SO_SalesOrder_ui",
		Table:        "SO_SalesOrderHeader",
		Keys:         []string{"SalesOrderNo"},
		KeyGenerator: "nGetNextSalesOrderNo",
		WriteOnly:    true,
	},
}

// Resolver looks up module configs by logical name
type Resolver struct {
	mu      sync.RWMutex
	configs map[string]ModuleConfig
}

// NewResolver creates a resolver over the built-in table. Extra configs
// replace built-in entries with the same logical name.
func NewResolver(extra ...ModuleConfig) *Resolver {
	r := &Resolver{configs: make(map[string]ModuleConfig, len(defaults)+len(extra))}
	for _, cfg := range defaults {
		r.configs[cfg.LogicalName] = cfg
	}
	for _, cfg := range extra {
		r.configs[cfg.LogicalName] = cfg
	}
	return r
}

// Resolve returns the config for a logical name. Unknown names yield a
// config error naming the module.
func (r *Resolver) Resolve(logicalName string) (ModuleConfig, error) {
	r.mu.RLock()
	cfg, ok := r.configs[logicalName]
	r.mu.RUnlock()
	if !ok {
		return ModuleConfig{}, errors.Newf(errors.ErrorTypeConfig, "data source %s not known, unable to get config", logicalName).
			WithDetail("module", logicalName)
	}
	cfg.Keys = append([]string(nil), cfg.Keys...)
	return cfg, nil
}

// Register adds or replaces a config
func (r *Resolver) Register(cfg ModuleConfig) error {
	if cfg.LogicalName == "" {
		return errors.New(errors.ErrorTypeConfig, "module config requires a name")
	}
	r.mu.Lock()
	r.configs[cfg.LogicalName] = cfg
	r.mu.Unlock()
	return nil
}

// Names lists the known logical names, sorted
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
