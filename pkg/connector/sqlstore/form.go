package sqlstore

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/json"
	"github.com/naveego/plugin-sage/pkg/models"
)

// writeBackForm is the data the host collects with the write-back form
type writeBackForm struct {
	Query      string           `json:"Query"`
	Parameters []writeBackParam `json:"Parameters"`
}

type writeBackParam struct {
	ParamName string `json:"ParamName"`
	ParamType string `json:"ParamType"`
}

var (
	formSchemaJSON = mustEncode(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"Query": map[string]interface{}{
				"type":        "string",
				"title":       "Query",
				"description": "Query to execute for write back with parameter place holders",
			},
			"Parameters": map[string]interface{}{
				"type":        "array",
				"title":       "Parameters",
				"description": "Parameters to replace the place holders in the query",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"ParamName": map[string]interface{}{"type": "string", "title": "Name"},
						"ParamType": map[string]interface{}{
							"type":      "string",
							"title":     "Type",
							"enum":      []string{"string", "decimal", "datetime"},
							"enumNames": []string{"String", "Decimal", "Datetime"},
						},
					},
					"required": []string{"ParamName", "ParamType"},
				},
			},
		},
		"required": []string{"Query"},
	})

	formUIJSON = mustEncode(map[string]interface{}{
		"ui:order": []string{"Query", "Parameters"},
		"Query":    map[string]interface{}{"ui:widget": "textarea"},
	})
)

func mustEncode(v interface{}) string {
	s, err := json.MarshalString(v)
	if err != nil {
		panic(err)
	}
	return s
}

// ConfigureWrite renders the write-back form. Once the host returns form
// data, the result also carries the write schema built from it.
func (b *Backend) ConfigureWrite(ctx context.Context, form *core.WriteForm) (*core.WriteFormResult, error) {
	result := &core.WriteFormResult{
		SchemaJSON: formSchemaJSON,
		UIJSON:     formUIJSON,
	}
	if form == nil || form.DataJSON == "" {
		return result, nil
	}

	result.DataJSON = form.DataJSON
	result.StateJSON = form.StateJSON

	var data writeBackForm
	if err := json.Unmarshal([]byte(form.DataJSON), &data); err != nil {
		b.logger.Warn("invalid write-back form", zap.Error(err))
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	if strings.TrimSpace(data.Query) == "" {
		result.Errors = append(result.Errors, "the Query property must be set")
		return result, nil
	}

	s := &models.Schema{
		Query:             data.Query,
		DataFlowDirection: models.DirectionWrite,
		Properties:        make([]models.Property, 0, len(data.Parameters)),
	}
	for _, p := range data.Parameters {
		s.Properties = append(s.Properties, models.Property{
			ID:           p.ParamName,
			Name:         p.ParamName,
			Type:         writeBackType(p.ParamType),
			TypeAtSource: p.ParamType,
		})
	}
	result.Schema = s
	return result, nil
}

func writeBackType(paramType string) models.PropertyType {
	switch paramType {
	case "decimal":
		return models.PropertyTypeFloat
	case "datetime":
		return models.PropertyTypeDatetime
	default:
		return models.PropertyTypeString
	}
}
