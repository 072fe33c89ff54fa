// Package format 将检索结果渲染为终端输出。
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/qgpt/internal/qgpt/biz"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

// Style 输出样式。
type Style string

const (
	StyleDetailed Style = "detailed"
	StyleSimple   Style = "simple"
	StyleJSON     Style = "json"
)

// NoResults 结果为空时的输出。
const NoResults = "no results found"

const (
	previewLines = 3
	previewRunes = 100
)

// ParseStyle 解析样式名称。
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(s)) {
	case StyleDetailed, "":
		return StyleDetailed, nil
	case StyleSimple:
		return StyleSimple, nil
	case StyleJSON:
		return StyleJSON, nil
	}
	return "", fmt.Errorf("unknown format %q, want detailed, simple or json", s)
}

type jsonResult struct {
	Rank       int     `json:"rank"`
	Score      float32 `json:"score"`
	FileName   string  `json:"filename"`
	SheetName  string  `json:"sheet_name"`
	OriginalID string  `json:"original_id"`
}

type jsonOutput struct {
	Query   string       `json:"query"`
	Results []jsonResult `json:"results"`
}

// Render 按样式渲染检索结果。
func Render(results []biz.SearchResult, query string, style Style) (string, error) {
	if len(results) == 0 {
		return NoResults, nil
	}

	switch style {
	case StyleSimple:
		var b strings.Builder
		fmt.Fprintf(&b, "query: %s\n", query)
		for i, r := range results {
			fmt.Fprintf(&b, "%d. %s | %s | score: %.4f\n", i+1, r.FileName, r.SheetName, r.Score)
		}
		return strings.TrimSpace(b.String()), nil

	case StyleJSON:
		out := jsonOutput{Query: query, Results: make([]jsonResult, len(results))}
		for i, r := range results {
			out.Results[i] = jsonResult{
				Rank:       i + 1,
				Score:      r.Score,
				FileName:   r.FileName,
				SheetName:  r.SheetName,
				OriginalID: r.OriginalID,
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil

	default:
		return detailed(results, query), nil
	}
}

func detailed(results []biz.SearchResult, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query: '%s'\n", query)
	fmt.Fprintf(&b, "found %d results:\n", len(results))
	b.WriteString(strings.Repeat("=", 80) + "\n")

	for i, r := range results {
		fmt.Fprintf(&b, "\nresult %d (score: %.4f)\n", i+1, r.Score)
		fmt.Fprintf(&b, "file: %s\n", r.FileName)
		fmt.Fprintf(&b, "sheet: %s\n", r.SheetName)
		id := r.OriginalID
		if id == "" {
			id = "N/A"
		}
		fmt.Fprintf(&b, "original id: %s\n", id)
		b.WriteString("preview:\n")

		lines := strings.Split(r.Text, "\n")
		shown := lines
		if len(shown) > previewLines {
			shown = shown[:previewLines]
		}
		for _, line := range shown {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fmt.Fprintf(&b, "  %s\n", Preview(line, previewRunes))
		}
		if len(lines) > len(shown) {
			b.WriteString("  ...\n")
		}
		b.WriteString(strings.Repeat("-", 60) + "\n")
	}
	return strings.TrimSpace(b.String())
}

// Preview 截取前 n 个字符，超出时追加 "..."。
func Preview(line string, n int) string {
	if utf8.RuneCountInString(line) <= n {
		return line
	}
	return string([]rune(line)[:n]) + "..."
}
