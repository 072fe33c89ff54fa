package batch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

// TestCase 测试集中的一条查询。评估集使用 question/spreadsheet_list，
// 召回数据集使用 query/Answer_table。
type TestCase struct {
	Question        string   `json:"question,omitempty"`
	SpreadsheetList Labels `json:"spreadsheet_list,omitempty"`
	Query           string `json:"query,omitempty"`
	AnswerTable     Labels `json:"Answer_table,omitempty"`
}

// Labels 真值列表。元素可为字符串或数字（表 ID），数字按原文转为字符串。
type Labels []string

// UnmarshalJSON 实现 json.Unmarshaler。
func (l *Labels) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(Labels, len(items))
	for i, raw := range items {
		v := bytes.TrimSpace(raw)
		switch {
		case len(v) > 0 && v[0] == '"':
			if err := json.Unmarshal(v, &out[i]); err != nil {
				return fmt.Errorf("label %d: %w", i, err)
			}
		case len(v) > 0 && (v[0] == '-' || (v[0] >= '0' && v[0] <= '9')):
			out[i] = string(v)
		default:
			return fmt.Errorf("label %d must be a string or a number, got %s", i, v)
		}
	}
	*l = out
	return nil
}

// Text 返回查询文本，question 优先。
func (c TestCase) Text() string {
	if c.Question != "" {
		return c.Question
	}
	return c.Query
}

// GroundTruth 返回真值表列表，spreadsheet_list 优先。
func (c TestCase) GroundTruth() []string {
	if c.SpreadsheetList != nil {
		return c.SpreadsheetList
	}
	return c.AnswerTable
}

// LoadTestCases 读取测试文件。
func LoadTestCases(path string) ([]TestCase, error) {
	var cases []TestCase
	if err := json.ReadFile(path, &cases); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrTestFileInvalid.WithMessagef("test file %s not found", path).WithCause(err)
		}
		return nil, errors.ErrTestFileInvalid.WithMessagef("test file %s is not a JSON array of cases", path).WithCause(err)
	}
	return cases, nil
}

// Stem 返回不含扩展名的文件名。
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ListTestFiles 返回目录下的 *.json 文件（不递归），按名称排序。
// 目录不存在时返回空列表。
func ListTestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warnw("test directory not found", "dir", dir)
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
