// internal/workflow/options.go
package workflow

import (
	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/types"
)

// Option is one entry of a dynamic select field.
type Option struct {
	Label any `json:"label"`
	Value any `json:"value"`
}

// ExtractOptions turns an API response into an option list. The list is
// read at cfg.ResponsePath (whole response when empty or not found); a single
// object is wrapped into a one-element list and any other shape yields no
// options. Object items map cfg.LabelKey/cfg.ValueKey (default label/value),
// scalar items become their own label and value.
func ExtractOptions(response any, cfg *types.FetchOptionsConfig) []Option {
	labelKey, valueKey := "label", "value"
	source := response
	if cfg != nil {
		if cfg.LabelKey != "" {
			labelKey = cfg.LabelKey
		}
		if cfg.ValueKey != "" {
			valueKey = cfg.ValueKey
		}
		if cfg.ResponsePath != "" {
			if v, ok := ExtractPath(response, cfg.ResponsePath); ok {
				source = v
			}
		}
	}

	var items []any
	switch v := source.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return []Option{}
	}

	options := make([]Option, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			options = append(options, Option{Label: obj[labelKey], Value: obj[valueKey]})
			continue
		}
		options = append(options, Option{Label: rules.ToString(item), Value: item})
	}
	return options
}
