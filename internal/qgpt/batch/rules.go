package batch

import "strings"

// MappingRule 测试文件到语料库的映射：测试文件名包含 TestKey 时，
// 选择名称包含 CorpusPattern 的语料库。
type MappingRule struct {
	TestKey       string `json:"test_key" mapstructure:"test-key"`
	CorpusPattern string `json:"corpus_pattern" mapstructure:"corpus-pattern"`
}

// DefaultRules 按顺序匹配，先命中者生效。
var DefaultRules = []MappingRule{
	{TestKey: "MiMoTable-English", CorpusPattern: "Table1_mimo_table_length_variation_mimo_en"},
	{TestKey: "MiMoTable-Chinese", CorpusPattern: "Table1_mimo_table_length_variation_mimo_ch"},
	{TestKey: "E2E-WTQ", CorpusPattern: "Table5_Single_Table_Retrieval_QGpT"},
	{TestKey: "FetaQA", CorpusPattern: "Table5_Single_Table_Retrieval_QGpT"},
	{TestKey: "OTT-QA", CorpusPattern: "Table7_OTTQA"},
	{TestKey: "MMQA-2tables", CorpusPattern: "Table6_Multi_Table_Retrieval_2_tables"},
	{TestKey: "MMQA-3tables", CorpusPattern: "Table6_Multi_Table_Retrieval_3_tables"},
}

// MatchRule 返回第一条 TestKey 是 stem 子串的规则。
func MatchRule(rules []MappingRule, stem string) (MappingRule, bool) {
	for _, r := range rules {
		if strings.Contains(stem, r.TestKey) {
			return r, true
		}
	}
	return MappingRule{}, false
}
