package sage

import (
	"context"

	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/cursor"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/json"
	"github.com/naveego/plugin-sage/pkg/models"
	"github.com/naveego/plugin-sage/pkg/schema"
)

const (
	divisionColumn  = "ARDivisionNo$"
	customerColumn  = "CustomerNo$"
	lineItemsColumn = "LineItems"
)

// lineItem is one entry of the LineItems array of a sales order
type lineItem struct {
	ItemCode        string      `json:"ItemCode"`
	QuantityOrdered json.Number `json:"QuantityOrdered"`
}

// writeSchema is the fixed schema of a write-only module
func writeSchema(cfg busobject.ModuleConfig) *models.Schema {
	return &models.Schema{
		ID:                cfg.LogicalName,
		Name:              cfg.LogicalName,
		PublisherMetaJSON: models.EncodeSchemaMeta(cfg.LogicalName),
		DataFlowDirection: models.DirectionWrite,
		Properties: []models.Property{
			{ID: divisionColumn, Name: divisionColumn, Type: models.PropertyTypeString, TypeAtSource: "string", IsKey: true},
			{ID: customerColumn, Name: customerColumn, Type: models.PropertyTypeString, TypeAtSource: "string", IsKey: true},
			{ID: lineItemsColumn, Name: lineItemsColumn, Type: models.PropertyTypeJSON, TypeAtSource: "json array", IsKey: true},
		},
	}
}

// insertSalesOrder creates a sales order header with a generated order
// number, the customer it belongs to and its lines.
func (b *Backend) insertSalesOrder(ctx context.Context, c *cursor.Cursor, cfg busobject.ModuleConfig, data map[string]interface{}) error {
	header := make(map[string]string, 2)
	for _, col := range []string{divisionColumn, customerColumn} {
		v, ok := data[col]
		if !ok {
			return errors.Newf(errors.ErrorTypeWrite, "%s must be set", col)
		}
		s, ok := formatValue(v)
		if !ok {
			return errors.Newf(errors.ErrorTypeWrite, "%s was null", col)
		}
		header[col] = s
	}

	lines, err := decodeLines(data)
	if err != nil {
		return err
	}

	key, err := c.NewKey(ctx, cfg.KeyGenerator)
	if err != nil {
		return err
	}

	for _, col := range []string{divisionColumn, customerColumn} {
		if err := c.SetValue(ctx, col, header[col]); err != nil {
			return err
		}
	}
	if err := c.AddLines(ctx, lines); err != nil {
		return err
	}

	rest := stringValues(data)
	for _, col := range []string{divisionColumn, customerColumn, lineItemsColumn} {
		delete(rest, col)
	}
	for _, col := range sortedKeys(rest) {
		if schema.IsKeyColumn(col, cfg.Keys) {
			continue
		}
		if err := c.SetValue(ctx, col, rest[col]); err != nil {
			return err
		}
	}

	if err := c.Commit(ctx); err != nil {
		return err
	}
	b.logger.Info("sales order created", zap.String("sales_order_no", key), zap.Int("lines", len(lines)))
	return nil
}

func decodeLines(data map[string]interface{}) ([]cursor.Line, error) {
	raw, ok := data[lineItemsColumn]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeWrite, "%s must be set", lineItemsColumn)
	}
	if raw == nil {
		return nil, errors.Newf(errors.ErrorTypeWrite, "%s was null", lineItemsColumn)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWrite, "failed to encode line items")
	}
	var items []lineItem
	if err := json.Unmarshal(encoded, &items); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeWrite, "line items must be an array of {ItemCode, QuantityOrdered}")
	}

	lines := make([]cursor.Line, len(items))
	for i, item := range items {
		lines[i] = cursor.Line{ItemCode: item.ItemCode, QuantityOrdered: item.QuantityOrdered.String()}
	}
	return lines, nil
}
