// Package corpus 负责语料库文件的读取、结构校验与文本预处理。
package corpus

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/qgpt/pkg/errors"
	"github.com/kart-io/qgpt/pkg/utils/json"
	"github.com/kart-io/qgpt/pkg/validator"
)

// RawRecord 未经校验的语料记录，可能不是 JSON 对象。
type RawRecord = json.RawMessage

// Record 校验后的语料记录。
type Record struct {
	ID        string `json:"id"`
	Text      string `json:"Text"`
	FileName  string `json:"FileName"`
	SheetName string `json:"SheetName"`
}

// recordSchema 只描述必需字段是否存在，值为 nil 表示缺失。
type recordSchema struct {
	ID   json.RawMessage `json:"id" validate:"required"`
	Text json.RawMessage `json:"Text" validate:"required"`
}

// Load 读取 JSON 数组形式的语料文件。
func Load(path string) ([]RawRecord, error) {
	var raw []RawRecord
	if err := json.ReadFile(path, &raw); err != nil {
		return nil, errors.ErrCorpusInvalid.WithCause(fmt.Errorf("load %s: %w", path, err))
	}
	return raw, nil
}

// Validate 检查语料结构：空列表、非对象元素、缺少 id/Text，
// 或 Text 经 PreprocessText 后为空均判为无效。
// 每条问题都会记录一条警告，全部检查完后返回结果。
func Validate(raw []RawRecord) bool {
	if len(raw) == 0 {
		logger.Warn("corpus is empty")
		return false
	}

	ok := true
	for i, r := range raw {
		fields, isObject := decodeObject(r)
		if !isObject {
			logger.Warnw("corpus record is not an object", "index", i)
			ok = false
			continue
		}

		schema := recordSchema{ID: fields["id"], Text: fields["Text"]}
		if errs := validator.StructWithLang(&schema, validator.LangEN); errs.HasErrors() {
			for _, field := range errs.Fields() {
				logger.Warnw("corpus record missing required field", "index", i, "field", field)
			}
			ok = false
			continue
		}

		text, err := optionalString(schema.Text)
		if err != nil {
			logger.Warnw("corpus record text is not a string", "index", i, "error", err)
			ok = false
			continue
		}
		if PreprocessText(text) == "" {
			logger.Warnw("corpus record has empty text", "index", i)
			ok = false
		}
	}
	return ok
}

// LoadAndValidate 读取、校验并转换为类型化记录，任一记录无效则整体失败。
func LoadAndValidate(path string) ([]Record, error) {
	raw, err := Load(path)
	if err != nil {
		return nil, err
	}
	if !Validate(raw) {
		return nil, errors.ErrCorpusInvalid.WithMessagef("corpus %s failed validation", path)
	}
	return ToRecords(raw)
}

// ToRecords 将已校验的原始记录转换为 Record。
// id 可为字符串或整数，统一转为字符串；可选字段缺失或为 null 时取空串。
func ToRecords(raw []RawRecord) ([]Record, error) {
	records := make([]Record, 0, len(raw))
	for i, r := range raw {
		fields, isObject := decodeObject(r)
		if !isObject {
			return nil, errors.ErrCorpusInvalid.WithMessagef("record %d is not an object", i)
		}

		id, err := renderID(fields["id"])
		if err != nil {
			return nil, errors.ErrCorpusInvalid.WithMessagef("record %d: %v", i, err)
		}
		text, err := optionalString(fields["Text"])
		if err != nil {
			return nil, errors.ErrCorpusInvalid.WithMessagef("record %d: Text: %v", i, err)
		}
		fileName, err := optionalString(fields["FileName"])
		if err != nil {
			return nil, errors.ErrCorpusInvalid.WithMessagef("record %d: FileName: %v", i, err)
		}
		sheetName, err := optionalString(fields["SheetName"])
		if err != nil {
			return nil, errors.ErrCorpusInvalid.WithMessagef("record %d: SheetName: %v", i, err)
		}

		records = append(records, Record{ID: id, Text: text, FileName: fileName, SheetName: sheetName})
	}
	return records, nil
}

// emptyCell 在压缩空白期间代替 "|  |"，私有区字符不会被 strings.Fields 拆开。
const emptyCell = "|\uE000|"

// PreprocessText 先将原文中的空单元格标记 "| nan |" 替换为 "|  |"，
// 再把连续空白压缩为单个空格并去掉首尾空白。替换出的两个空格保留。
// 以制表符或换行分隔的 nan 不视为空单元格。
func PreprocessText(text string) string {
	text = strings.ReplaceAll(text, "| nan |", emptyCell)
	text = strings.Join(strings.Fields(text), " ")
	return strings.ReplaceAll(text, emptyCell, "|  |")
}

func decodeObject(r RawRecord) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(r)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func renderID(raw json.RawMessage) (string, error) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return "", fmt.Errorf("missing id")
	}
	switch {
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", fmt.Errorf("id: %w", err)
		}
		return s, nil
	case v[0] == '-' || (v[0] >= '0' && v[0] <= '9'):
		return string(v), nil
	default:
		return "", fmt.Errorf("id must be a string or an integer, got %s", v)
	}
}

func optionalString(raw json.RawMessage) (string, error) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("expected a string: %w", err)
	}
	return s, nil
}
