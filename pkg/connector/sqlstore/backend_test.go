package sqlstore

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/config"
	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/models"
)

func newBackend(t *testing.T, driver string) (*Backend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	cfg := config.NewPluginConfig()
	cfg.Backend.Kind = config.BackendSQL
	cfg.Backend.Driver = driver
	cfg.Backend.DSN = "unused"

	b, err := New(context.Background(), core.Options{Config: cfg, DB: db})
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = b.Close()
	})
	return b.(*Backend), mock
}

func customerSchema() *models.Schema {
	return &models.Schema{
		ID:                busobject.CustomerInformation,
		Name:              busobject.CustomerInformation,
		PublisherMetaJSON: models.EncodeSchemaMeta(busobject.CustomerInformation),
		Properties: []models.Property{
			{ID: "ARDivisionNo", Type: models.PropertyTypeString, IsKey: true},
			{ID: "CustomerNo", Type: models.PropertyTypeString, IsKey: true},
			{ID: "CustomerName", Type: models.PropertyTypeString},
			{ID: "CreditLimit", Type: models.PropertyTypeFloat},
			{ID: "DateUpdated", Type: models.PropertyTypeDatetime},
		},
	}
}

func record(data string) *models.Record {
	return &models.Record{CorrelationID: "test", Action: models.ActionUpsert, DataJSON: data}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), core.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDiscover(t *testing.T) {
	b, mock := newBackend(t, "mysql")

	mock.ExpectQuery("SELECT * FROM AR_Customer WHERE 1=0").
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("ARDivisionNo").OfType("VARCHAR", "").Nullable(false),
			sqlmock.NewColumn("CustomerNo").OfType("VARCHAR", "").Nullable(false),
			sqlmock.NewColumn("CreditLimit").OfType("DECIMAL", 0.0).Nullable(true),
			sqlmock.NewColumn("").OfType("VARCHAR", ""),
			sqlmock.NewColumn("DateUpdated").OfType("DATE", time.Time{}).Nullable(true),
		))

	cfg, err := busobject.NewResolver().Resolve(busobject.CustomerInformation)
	require.NoError(t, err)

	s, err := b.Discover(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "AR_Customer", s.Description)
	assert.Equal(t, `{"Module":"Customer Information"}`, s.PublisherMetaJSON)
	require.Len(t, s.Properties, 5)

	assert.Equal(t, "ARDivisionNo", s.Properties[0].ID)
	assert.True(t, s.Properties[0].IsKey)
	assert.False(t, s.Properties[0].IsNullable)
	assert.Equal(t, "VARCHAR", s.Properties[0].TypeAtSource)

	assert.Equal(t, models.PropertyTypeFloat, s.Properties[2].Type)
	assert.True(t, s.Properties[2].IsNullable)

	assert.Equal(t, "UNKNOWN_3", s.Properties[3].ID)
	assert.True(t, s.Properties[3].IsNullable)

	assert.Equal(t, models.PropertyTypeDatetime, s.Properties[4].Type)
	assert.True(t, s.Properties[4].IsUpdateCounter)
}

func TestDiscoverQueryFailure(t *testing.T) {
	b, mock := newBackend(t, "mysql")
	mock.ExpectQuery("SELECT * FROM CI_Item WHERE 1=0").WillReturnError(stderrors.New("table not found"))

	cfg, err := busobject.NewResolver().Resolve(busobject.ItemInformation)
	require.NoError(t, err)

	_, err = b.Discover(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMetadata))
}

func TestRows(t *testing.T) {
	b, mock := newBackend(t, "mysql")

	mock.ExpectQuery("SELECT * FROM AR_Customer").
		WillReturnRows(sqlmock.NewRows([]string{"ARDivisionNo", "CustomerNo", "CreditLimit"}).
			AddRow("01", []byte("ABF"), 5000.5).
			AddRow("01", []byte("AVNET"), nil))

	rows, err := b.Rows(context.Background(), customerSchema())
	require.NoError(t, err)

	var got []map[string]interface{}
	for rows.Next() {
		got = append(got, rows.Row())
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	require.Len(t, got, 2)
	assert.Equal(t, "ABF", got[0]["CustomerNo"])
	assert.Equal(t, 5000.5, got[0]["CreditLimit"])
	assert.Nil(t, got[1]["CreditLimit"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutInsert(t *testing.T) {
	b, mock := newBackend(t, "mysql")

	mock.ExpectExec("INSERT INTO AR_Customer (ARDivisionNo, CustomerNo, CreditLimit, DateUpdated) VALUES (?, ?, ?, ?)").
		WithArgs("01", "ABF", 5000.5, time.Date(2019, 6, 12, 0, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := b.Put(context.Background(), customerSchema(),
		record(`{"ARDivisionNo":"01","CustomerNo":"ABF","CustomerName":"","CreditLimit":5000.5,"DateUpdated":"2019-06-12"}`))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutFallsBackToUpdate(t *testing.T) {
	tests := []struct {
		name      string
		driver    string
		dupErr    error
		insertSQL string
		updateSQL string
	}{
		{
			name:      "mysql",
			driver:    "mysql",
			dupErr:    &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '01-ABF' for key 'PRIMARY'"},
			insertSQL: "INSERT INTO AR_Customer (ARDivisionNo, CustomerNo, CreditLimit) VALUES (?, ?, ?)",
			updateSQL: "UPDATE AR_Customer SET CreditLimit = ? WHERE ARDivisionNo = ? AND CustomerNo = ?",
		},
		{
			name:      "postgres",
			driver:    "pgx",
			dupErr:    &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
			insertSQL: "INSERT INTO AR_Customer (ARDivisionNo, CustomerNo, CreditLimit) VALUES ($1, $2, $3)",
			updateSQL: "UPDATE AR_Customer SET CreditLimit = $1 WHERE ARDivisionNo = $2 AND CustomerNo = $3",
		},
		{
			name:      "odbc",
			driver:    "mysql",
			dupErr:    stderrors.New("[ProvideX][ODBC Driver][FILEIO]Duplicate key not allowed"),
			insertSQL: "INSERT INTO AR_Customer (ARDivisionNo, CustomerNo, CreditLimit) VALUES (?, ?, ?)",
			updateSQL: "UPDATE AR_Customer SET CreditLimit = ? WHERE ARDivisionNo = ? AND CustomerNo = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mock := newBackend(t, tt.driver)

			mock.ExpectExec(tt.insertSQL).WithArgs("01", "ABF", 100.0).WillReturnError(tt.dupErr)
			mock.ExpectExec(tt.updateSQL).WithArgs(100.0, "01", "ABF").WillReturnResult(sqlmock.NewResult(0, 1))

			err := b.Put(context.Background(), customerSchema(), record(`{"ARDivisionNo":"01","CustomerNo":"ABF","CreditLimit":100}`))
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPutSameKeyTwice(t *testing.T) {
	b, mock := newBackend(t, "mysql")
	insert := "INSERT INTO AR_Customer (ARDivisionNo, CustomerNo, CustomerName) VALUES (?, ?, ?)"

	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectExec("UPDATE AR_Customer SET CustomerName = ? WHERE ARDivisionNo = ? AND CustomerNo = ?").
		WithArgs("Second", "01", "A").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, b.Put(ctx, customerSchema(), record(`{"ARDivisionNo":"01","CustomerNo":"A","CustomerName":"First"}`)))
	require.NoError(t, b.Put(ctx, customerSchema(), record(`{"ARDivisionNo":"01","CustomerNo":"A","CustomerName":"Second"}`)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutOtherInsertErrorIsReturned(t *testing.T) {
	b, mock := newBackend(t, "mysql")

	mock.ExpectExec("INSERT INTO AR_Customer (ARDivisionNo, CustomerNo) VALUES (?, ?)").
		WillReturnError(stderrors.New("Column CustomerNo too long"))

	err := b.Put(context.Background(), customerSchema(), record(`{"ARDivisionNo":"01","CustomerNo":"WAYTOOLONGCUSTOMER"}`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeWrite))
	assert.Contains(t, err.Error(), "Column CustomerNo too long")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutWriteBack(t *testing.T) {
	b, mock := newBackend(t, "mysql")

	s := &models.Schema{
		Query:             "UPDATE CI_Item SET StandardUnitPrice = ? WHERE ItemCode = ?",
		DataFlowDirection: models.DirectionWrite,
		Properties: []models.Property{
			{ID: "Price", Type: models.PropertyTypeFloat},
			{ID: "ItemCode", Type: models.PropertyTypeString},
		},
	}

	mock.ExpectExec(s.Query).WithArgs(12.75, "1001-HON-H252").WillReturnResult(sqlmock.NewResult(0, 1))

	err := b.Put(context.Background(), s, record(`{"ItemCode":"1001-HON-H252","Price":12.75}`))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigureWrite(t *testing.T) {
	b, _ := newBackend(t, "mysql")
	ctx := context.Background()

	t.Run("first call renders the form", func(t *testing.T) {
		res, err := b.ConfigureWrite(ctx, &core.WriteForm{})
		require.NoError(t, err)
		assert.Contains(t, res.SchemaJSON, `"Parameters"`)
		assert.Contains(t, res.UIJSON, `"ui:widget":"textarea"`)
		assert.Nil(t, res.Schema)
	})

	t.Run("form data builds the write schema", func(t *testing.T) {
		data := `{"Query":"CALL set_price(?, ?, ?)","Parameters":[{"ParamName":"ItemCode","ParamType":"string"},{"ParamName":"Price","ParamType":"decimal"},{"ParamName":"From","ParamType":"datetime"}]}`
		res, err := b.ConfigureWrite(ctx, &core.WriteForm{DataJSON: data, StateJSON: "{}"})
		require.NoError(t, err)
		require.NotNil(t, res.Schema)
		assert.Empty(t, res.Errors)
		assert.Equal(t, "{}", res.StateJSON)
		assert.Equal(t, "CALL set_price(?, ?, ?)", res.Schema.Query)
		assert.Equal(t, models.DirectionWrite, res.Schema.DataFlowDirection)
		require.Len(t, res.Schema.Properties, 3)
		assert.Equal(t, models.PropertyTypeString, res.Schema.Properties[0].Type)
		assert.Equal(t, models.PropertyTypeFloat, res.Schema.Properties[1].Type)
		assert.Equal(t, models.PropertyTypeDatetime, res.Schema.Properties[2].Type)
	})

	t.Run("bad form data is reported on the form", func(t *testing.T) {
		res, err := b.ConfigureWrite(ctx, &core.WriteForm{DataJSON: `{"Parameters":[]}`})
		require.NoError(t, err)
		assert.Nil(t, res.Schema)
		assert.Equal(t, []string{"the Query property must be set"}, res.Errors)
	})
}

func TestPropertyType(t *testing.T) {
	tests := map[string]models.PropertyType{
		"DECIMAL":   models.PropertyTypeFloat,
		"numeric":   models.PropertyTypeFloat,
		"FLOAT8":    models.PropertyTypeFloat,
		"DOUBLE":    models.PropertyTypeFloat,
		"DATE":      models.PropertyTypeDatetime,
		"TIMESTAMP": models.PropertyTypeDatetime,
		"VARCHAR":   models.PropertyTypeString,
		"INT":       models.PropertyTypeString,
		"":          models.PropertyTypeString,
	}
	for dbType, want := range tests {
		assert.Equal(t, want, propertyType(dbType), dbType)
	}
}
