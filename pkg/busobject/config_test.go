package busobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveego/plugin-sage/pkg/errors"
)

func TestResolveDefaults(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name  string
		table string
		keys  []string
	}{
		{SalesOrders, "SO_SalesOrderHeader", []string{"SalesOrderNo"}},
		{SalesOrderDetail, "SO_SalesOrderDetail", []string{"SalesOrderNo", "LineKey"}},
		{CustomerInformation, "AR_Customer", []string{"ARDivisionNo", "CustomerNo"}},
		{InvoiceHistory, "AR_InvoiceHistoryHeader", []string{"InvoiceNo", "HeaderSeqNo"}},
		{InvoiceHistoryDetail, "AR_InvoiceHistoryDetail", []string{"InvoiceNo", "HeaderSeqNo", "DetailSeqNo"}},
		{ItemInformation, "CI_Item", []string{"ItemCode"}},
		{ShippingAddresses, "SO_ShipToAddress", []string{"ARDivisionNo", "CustomerNo", "ShipToCode"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := r.Resolve(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.table, cfg.Table)
			assert.Equal(t, tt.keys, cfg.Keys)
			assert.NotEmpty(t, cfg.Module)
			assert.NotEmpty(t, cfg.BusObject)
			assert.NotEmpty(t, cfg.Task)
		})
	}

	detail, err := r.Resolve(SalesOrderDetail)
	require.NoError(t, err)
	assert.True(t, detail.IsDetails)
}

func TestResolveUnknown(t *testing.T) {
	_, err := NewResolver().Resolve("Payroll")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "Payroll")
}

func TestResolveReturnsCopy(t *testing.T) {
	r := NewResolver()
	cfg, err := r.Resolve(CustomerInformation)
	require.NoError(t, err)
	cfg.Keys[0] = "changed"

	again, err := r.Resolve(CustomerInformation)
	require.NoError(t, err)
	assert.Equal(t, "ARDivisionNo", again.Keys[0])
}

func TestExtraConfigsOverride(t *testing.T) {
	r := NewResolver(ModuleConfig{LogicalName: ItemInformation, Module: "C/I", Table: "CI_ItemWarehouse", Keys: []string{"ItemCode", "WarehouseCode"}})

	cfg, err := r.Resolve(ItemInformation)
	require.NoError(t, err)
	assert.Equal(t, "CI_ItemWarehouse", cfg.Table)

	require.NoError(t, r.Register(ModuleConfig{LogicalName: "test module", Module: "T/M"}))
	assert.Contains(t, r.Names(), "test module")
	assert.Error(t, r.Register(ModuleConfig{}))
}
