package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"db-agent-be/pkg/database"
)

const (
	ChartOpenTag  = "[CHART_JSON]"
	ChartCloseTag = "[/CHART_JSON]"
)

var (
	jsonFencePattern  = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	chartBlockPattern = regexp.MustCompile(`(?s)\s*\[CHART_JSON\].*?\[/CHART_JSON\]\s*`)
)

// ChartConfig is the subset of an ApexCharts configuration the UI renders.
type ChartConfig struct {
	Chart  ChartType `json:"chart"`
	Series []Series  `json:"series"`
	XAxis  XAxis     `json:"xaxis"`
	Theme  Theme     `json:"theme"`
}

type ChartType struct {
	Type string `json:"type"`
}

type Series struct {
	Name string `json:"name"`
	Data []any  `json:"data"`
}

type XAxis struct {
	Categories []string `json:"categories"`
}

type Theme struct {
	Mode string `json:"mode"`
}

// BuildChart turns a two-column result into a chart: the first column gives
// the x-axis categories, the second the values of the only series.
func BuildChart(res database.Result, kind string) (ChartConfig, bool) {
	if len(res.Columns) < 2 || len(res.Rows) == 0 {
		return ChartConfig{}, false
	}
	if kind == "" {
		kind = "bar"
	}

	labelCol, valueCol := res.Columns[0], res.Columns[1]
	cfg := ChartConfig{
		Chart:  ChartType{Type: kind},
		Series: []Series{{Name: humanize(valueCol), Data: make([]any, 0, len(res.Rows))}},
		XAxis:  XAxis{Categories: make([]string, 0, len(res.Rows))},
		Theme:  Theme{Mode: "dark"},
	}
	for _, row := range res.Rows {
		cfg.XAxis.Categories = append(cfg.XAxis.Categories, fmt.Sprint(row[labelCol]))
		cfg.Series[0].Data = append(cfg.Series[0].Data, numeric(row[valueCol]))
	}
	return cfg, true
}

// Tagged renders cfg between the chart delimiters.
func (c ChartConfig) Tagged() string {
	data, _ := json.Marshal(c)
	return ChartOpenTag + "\n" + string(data) + "\n" + ChartCloseTag
}

// EnsureChartTags wraps the first JSON object of text, fenced with ```json or
// bare, in chart delimiters. Text that already carries delimiters, or holds
// no valid JSON object, is returned unchanged.
func EnsureChartTags(text string) string {
	if strings.Contains(text, ChartOpenTag) {
		return text
	}

	if m := jsonFencePattern.FindStringSubmatchIndex(text); m != nil {
		body := strings.TrimSpace(text[m[2]:m[3]])
		if json.Valid([]byte(body)) {
			return text[:m[0]] + "\n" + ChartOpenTag + "\n" + body + "\n" + ChartCloseTag + "\n" + text[m[1]:]
		}
		return text
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return text
	}
	body := text[start : end+1]
	if !json.Valid([]byte(body)) {
		return text
	}
	return text[:start] + "\n" + ChartOpenTag + "\n" + body + "\n" + ChartCloseTag + "\n" + text[end+1:]
}

// StripCharts removes every delimited chart block from text.
func StripCharts(text string) string {
	return strings.TrimSpace(chartBlockPattern.ReplaceAllString(EnsureChartTags(text), "\n\n"))
}

func chartKind(query string) string {
	switch {
	case hasAny(query, []string{"line", "trend"}):
		return "line"
	default:
		return "bar"
	}
}

func numeric(v any) any {
	switch t := v.(type) {
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return v
}

func humanize(col string) string {
	s := strings.ReplaceAll(col, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
