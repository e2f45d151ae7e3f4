package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/storm-crypto/BettaFish/internal/doctree"
)

// ChartStats summarises chart validation over one render.
type ChartStats struct {
	Total           int `json:"total"`
	Valid           int `json:"valid"`
	RepairedLocally int `json:"repairedLocally"`
	RepairedAPI     int `json:"repairedApi"`
	Failed          int `json:"failed"`
}

// Repaired counts charts fixed by any means.
func (s ChartStats) Repaired() int { return s.RepairedLocally + s.RepairedAPI }

func (s *ChartStats) record(status ChartStatus) {
	s.Total++
	switch status {
	case ChartValid:
		s.Valid++
	case ChartRepaired:
		s.RepairedLocally++
	case ChartFailed:
		s.Failed++
	}
}

type ChartStatus int

const (
	ChartValid ChartStatus = iota
	ChartRepaired
	ChartFailed
)

func (s ChartStatus) String() string {
	switch s {
	case ChartValid:
		return "valid"
	case ChartRepaired:
		return "repaired"
	default:
		return "failed"
	}
}

// ChartCheck is the outcome for one chart widget. Config is the Chart.js
// configuration to embed and is nil when Status is ChartFailed.
type ChartCheck struct {
	Status   ChartStatus
	Config   map[string]any
	Problems []string
}

const defaultChartType = "bar"

var chartTypes = map[string]bool{
	"bar": true, "line": true, "pie": true, "doughnut": true,
	"radar": true, "polarArea": true, "scatter": true, "bubble": true,
}

// ChartValidator checks chart widgets and repairs what it can without
// touching the source block.
type ChartValidator struct{}

func (ChartValidator) Check(b *doctree.Block) ChartCheck {
	var problems []string
	repaired := false
	fix := func(format string, args ...any) {
		repaired = true
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	fail := func(format string, args ...any) ChartCheck {
		return ChartCheck{Status: ChartFailed, Problems: append(problems, fmt.Sprintf(format, args...))}
	}

	props, _ := b.Fields["props"].(map[string]any)

	chartType := chartTypeOf(b.WidgetType, props)
	if chartType == "" {
		chartType = defaultChartType
		fix("chart type defaulted to %s", defaultChartType)
	}
	xy := chartType == "scatter" || chartType == "bubble"

	data, ok := b.Fields["data"].(map[string]any)
	if !ok {
		return fail("missing data")
	}
	rawSets, ok := data["datasets"].([]any)
	if !ok || len(rawSets) == 0 {
		return fail("no datasets")
	}

	var datasets []any
	longest := 0
	for i, raw := range rawSets {
		ds, ok := raw.(map[string]any)
		if !ok {
			fix("dataset %d dropped: not an object", i)
			continue
		}
		values, ok := ds["data"].([]any)
		if !ok {
			fix("dataset %d dropped: data is not a list", i)
			continue
		}
		clean := make([]any, 0, len(values))
		usable := true
		for j, v := range values {
			num, changed, ok := chartValue(v, xy)
			if !ok {
				fix("dataset %d dropped: value %d is not numeric", i, j)
				usable = false
				break
			}
			if changed {
				fix("dataset %d value %d coerced to a number", i, j)
			}
			clean = append(clean, num)
		}
		if !usable {
			continue
		}
		out := make(map[string]any, len(ds))
		for k, v := range ds {
			out[k] = v
		}
		out["data"] = clean
		datasets = append(datasets, out)
		if len(clean) > longest {
			longest = len(clean)
		}
	}
	if len(datasets) == 0 {
		return fail("no usable dataset")
	}

	outData := make(map[string]any, len(data))
	for k, v := range data {
		outData[k] = v
	}
	outData["datasets"] = datasets
	if _, ok := data["labels"].([]any); !ok && !xy {
		labels := make([]any, longest)
		for i := range labels {
			labels[i] = strconv.Itoa(i + 1)
		}
		outData["labels"] = labels
		fix("labels synthesized")
	}

	options := map[string]any{}
	if o, ok := props["options"].(map[string]any); ok {
		options = o
	} else if o, ok := b.Fields["options"].(map[string]any); ok {
		options = o
	}

	status := ChartValid
	if repaired {
		status = ChartRepaired
	}
	return ChartCheck{
		Status:   status,
		Problems: problems,
		Config: map[string]any{
			"type":    chartType,
			"data":    outData,
			"options": options,
		},
	}
}

// chartTypeOf reads props.type, then the widget type suffix
// ("chart.js/line", "chart.js-line").
func chartTypeOf(widgetType string, props map[string]any) string {
	if t, ok := props["type"].(string); ok && chartTypes[t] {
		return t
	}
	suffix := strings.TrimPrefix(widgetType, doctree.ChartWidgetPrefix)
	suffix = strings.TrimLeft(suffix, "/-.:")
	if chartTypes[suffix] {
		return suffix
	}
	return ""
}

// chartValue normalises one data point. Points of scatter and bubble charts
// may be objects.
func chartValue(v any, xy bool) (out any, changed bool, ok bool) {
	switch t := v.(type) {
	case nil:
		return nil, false, true
	case float64:
		return t, false, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, false, false
		}
		return f, false, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false, false
		}
		return f, true, true
	case map[string]any:
		if xy {
			return t, false, true
		}
	}
	return nil, false, false
}
