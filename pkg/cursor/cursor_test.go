package cursor

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/dispatch/dispatchtest"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/session"
)

func newSystem() *dispatchtest.System {
	sys := dispatchtest.NewSystem("test", "password", "TST")
	sys.AddTable(&dispatchtest.Table{
		BusObject: "AR_Customer_bus",
		Columns:   []string{"ARDivisionNo$", "CustomerNo$", "CustomerName$", "CreditLimit"},
		Keys:      []string{"ARDivisionNo$", "CustomerNo$"},
		Rows: [][]string{
			{"01", "ABF", "American Business Futures", "5000.00"},
			{"01", "AVNET", "Avnet Processing Corp", "25000.00"},
			{"02", "ORANGE", "Orange Door & Window Co.", "0.00"},
		},
	})
	sys.AddTable(&dispatchtest.Table{
		BusObject: "SO_SalesOrder_bus",
		Columns:   []string{"SalesOrderNo$", "ARDivisionNo$", "CustomerNo$"},
		Keys:      []string{"SalesOrderNo$"},
		Lines: &dispatchtest.Table{
			BusObject: "SO_SalesOrderDetail_bus",
			Columns:   []string{"ItemCode$", "QuantityOrdered"},
		},
	})
	sys.AddTable(&dispatchtest.Table{
		BusObject: "CI_ItemCode_bus",
		Columns:   []string{"ItemCode$", "ItemCodeDesc$"},
		Keys:      []string{"ItemCode$"},
	})
	return sys
}

func openCursor(t *testing.T, sys *dispatchtest.System, name string) *Cursor {
	t.Helper()
	ctx := context.Background()

	s, err := session.Open(ctx, sys.Factory(), session.Credentials{
		Username: "test", Password: "password", CompanyCode: "TST", HomePath: "path",
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	cfg, err := busobject.NewResolver().Resolve(name)
	require.NoError(t, err)

	c, err := Open(ctx, s, cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestMetadata(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.CustomerInformation)

	columns, count, err := c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ARDivisionNo$", "CustomerNo$", "CustomerName$", "CreditLimit"}, columns)
	assert.Equal(t, 3, count)

	calls := sys.Calls("sGetColumns")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"DS_AR_Customer_bus"}, calls[0].Args)

	// cached
	_, _, err = c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Len(t, sys.Calls("sGetDataSources"), 1)
}

func TestMetadataFailureCarriesLastError(t *testing.T) {
	sys := newSystem()
	sys.FailOn("sGetColumns", stderrors.New("Table is locked"))
	c := openCursor(t, sys, busobject.CustomerInformation)

	_, _, err := c.Metadata(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMetadata))

	var be *errors.BridgeError
	require.True(t, stderrors.As(err, &be))
	assert.Equal(t, "sGetColumns", be.Op)
	assert.Equal(t, []string{"DS_AR_Customer_bus"}, be.Params)
	assert.Equal(t, "Table is locked", be.LastError)
}

func TestReadAll(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.CustomerInformation)

	rows, err := c.ReadAll(context.Background())
	require.NoError(t, err)

	var got []map[string]string
	for rows.Next() {
		got = append(got, rows.Row())
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 3)
	assert.Equal(t, "ABF", got[0]["CustomerNo$"])
	assert.Equal(t, "Orange Door & Window Co.", got[2]["CustomerName$"])
	assert.Equal(t, "25000.00", got[1]["CreditLimit"])

	// exhausted iterators stay exhausted
	assert.False(t, rows.Next())
}

func TestReadAllEmptyMakesNoNavigationCalls(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.ItemInformation)

	rows, err := c.ReadAll(context.Background())
	require.NoError(t, err)
	assert.False(t, rows.Next())
	require.NoError(t, rows.Err())

	assert.Empty(t, sys.Calls("nMoveFirst"))
	assert.Empty(t, sys.Calls("nMoveNext"))
	assert.Empty(t, sys.Calls("nGetRecord"))
}

func TestReadAllFieldCountMismatch(t *testing.T) {
	sys := newSystem()
	sys.Table("AR_Customer_bus").Corrupt = true
	c := openCursor(t, sys, busobject.CustomerInformation)

	rows, err := c.ReadAll(context.Background())
	require.NoError(t, err)
	assert.False(t, rows.Next())
	require.Error(t, rows.Err())
	assert.True(t, errors.IsType(rows.Err(), errors.ErrorTypeDataIntegrity))
}

func TestReadAllKeepsRecordFetchFailureType(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.CustomerInformation)

	rows, err := c.ReadAll(context.Background())
	require.NoError(t, err)
	sys.FailOn("nGetRecord", stderrors.New("Record locked"))

	assert.False(t, rows.Next())
	require.Error(t, rows.Err())
	assert.True(t, errors.IsType(rows.Err(), errors.ErrorTypeMetadata))
	assert.False(t, errors.IsType(rows.Err(), errors.ErrorTypeDataIntegrity))

	var e *errors.Error
	require.True(t, stderrors.As(rows.Err(), &e))
	assert.Equal(t, 1, e.Details["row"])

	var be *errors.BridgeError
	require.True(t, stderrors.As(rows.Err(), &be))
	assert.Equal(t, "nGetRecord", be.Op)
	assert.Equal(t, "Record locked", be.LastError)
}

func TestReadFirst(t *testing.T) {
	tests := []struct {
		name    string
		module  string
		wantRow map[string]string
	}{
		{
			name:   "rows",
			module: busobject.CustomerInformation,
			wantRow: map[string]string{
				"ARDivisionNo$": "01", "CustomerNo$": "ABF",
				"CustomerName$": "American Business Futures", "CreditLimit": "5000.00",
			},
		},
		{
			name:    "empty",
			module:  busobject.ItemInformation,
			wantRow: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := openCursor(t, newSystem(), tt.module)
			columns, row, err := c.ReadFirst(context.Background())
			require.NoError(t, err)
			assert.NotEmpty(t, columns)
			assert.Equal(t, tt.wantRow, row)
		})
	}
}

func TestKeyColumns(t *testing.T) {
	c := openCursor(t, newSystem(), busobject.CustomerInformation)
	keys, err := c.KeyColumns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ARDivisionNo$", "CustomerNo$"}, keys)
}

func TestSetKeyExistsUpdate(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.CustomerInformation)
	ctx := context.Background()

	keys := []string{"ARDivisionNo$", "CustomerNo$"}
	require.NoError(t, c.SetKey(ctx, keys, []string{"01", "AVNET"}))

	found, err := c.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, c.Update(ctx, map[string]string{
		"ARDivisionNo$": "99",
		"CustomerNo$":   "AVNET",
		"CreditLimit":   "30000.00",
	}))

	row := sys.Row("AR_Customer_bus", "01", "AVNET")
	require.NotNil(t, row)
	assert.Equal(t, "30000.00", row["CreditLimit"])
	assert.Equal(t, "Avnet Processing Corp", row["CustomerName$"])

	// keys are never written as values
	for _, call := range sys.Calls("nSetValue") {
		assert.NotEqual(t, "ARDivisionNo$", call.Args[0])
		assert.NotEqual(t, "CustomerNo$", call.Args[0])
	}
}

func TestExistsMissing(t *testing.T) {
	c := openCursor(t, newSystem(), busobject.CustomerInformation)
	ctx := context.Background()

	require.NoError(t, c.SetKey(ctx, []string{"ARDivisionNo$", "CustomerNo$"}, []string{"01", "NOPE"}))
	found, err := c.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetKeyMismatchedLengths(t *testing.T) {
	c := openCursor(t, newSystem(), busobject.CustomerInformation)
	err := c.SetKey(context.Background(), []string{"ARDivisionNo$", "CustomerNo$"}, []string{"01"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestUpdateInvalidColumn(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.CustomerInformation)
	ctx := context.Background()

	require.NoError(t, c.SetKey(ctx, []string{"ARDivisionNo$", "CustomerNo$"}, []string{"01", "ABF"}))
	err := c.Update(ctx, map[string]string{"Bogus$": "x"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeWrite))
	assert.Contains(t, err.Error(), "Error: Column Bogus$ is not valid")
	assert.Contains(t, err.Error(), "Method: nSetValue")
	assert.Contains(t, err.Error(), "Params: [Bogus$, x]")
	assert.Empty(t, sys.Calls("nWrite"))
}

func TestCloseDetailCursorReleasesParent(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.SalesOrderDetail)

	columns, _, err := c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ItemCode$", "QuantityOrdered"}, columns)

	c.Close()
	assert.Equal(t, 1, sys.Released("SO_SalesOrderDetail_bus"))
	assert.Equal(t, 1, sys.Released("SO_SalesOrder_bus"))

	// closing twice releases nothing more
	c.Close()
	assert.Equal(t, 1, sys.Released("SO_SalesOrder_bus"))
}

func TestInsertWithLines(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.SalesOrders)
	ctx := context.Background()

	key, err := c.NewKey(ctx, c.Config().KeyGenerator)
	require.NoError(t, err)
	assert.Equal(t, "9000001", key)

	require.NoError(t, c.SetValue(ctx, "ARDivisionNo$", "01"))
	require.NoError(t, c.SetValue(ctx, "CustomerNo$", "ABF"))
	require.NoError(t, c.AddLines(ctx, []Line{
		{ItemCode: "1001-HON-H252", QuantityOrdered: "2"},
		{ItemCode: "2481-ADA-HF", QuantityOrdered: "10"},
	}))
	require.NoError(t, c.Commit(ctx))

	header := sys.Row("SO_SalesOrder_bus", "9000001")
	require.NotNil(t, header)
	assert.Equal(t, "ABF", header["CustomerNo$"])

	lines := sys.Table("SO_SalesOrder_bus").Lines.Rows
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"1001-HON-H252", "2"}, lines[0])
	assert.Equal(t, []string{"2481-ADA-HF", "10"}, lines[1])
}

func TestInsert(t *testing.T) {
	sys := newSystem()
	c := openCursor(t, sys, busobject.SalesOrders)

	key, err := c.Insert(context.Background(), map[string]string{
		"SalesOrderNo$": "ignored",
		"ARDivisionNo$": "02",
		"CustomerNo$":   "ORANGE",
	}, "nGetNextSalesOrderNo")
	require.NoError(t, err)

	row := sys.Row("SO_SalesOrder_bus", key)
	require.NotNil(t, row)
	assert.Equal(t, "ORANGE", row["CustomerNo$"])
	assert.Equal(t, 1, sys.Count("SO_SalesOrder_bus"))
}

func TestInsertUnsupported(t *testing.T) {
	c := openCursor(t, newSystem(), busobject.CustomerInformation)
	_, err := c.Insert(context.Background(), map[string]string{"CustomerName$": "x"}, "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeWrite))
	assert.Contains(t, err.Error(), "does not support inserts")
}
