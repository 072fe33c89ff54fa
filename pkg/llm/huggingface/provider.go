// Package huggingface 提供 HuggingFace Inference API Embedding 供应商实现。
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/qgpt/pkg/llm"
	"github.com/kart-io/qgpt/pkg/utils/httpclient"
	"github.com/kart-io/qgpt/pkg/utils/json"
)

const ProviderName = "huggingface"

func init() {
	llm.RegisterEmbeddingProvider(ProviderName, NewProvider)
}

// Config HuggingFace 供应商配置。
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	APIKey     string        `json:"api_key" mapstructure:"api_key"`
	EmbedModel string        `json:"embed_model" mapstructure:"embed_model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`

	// WaitForModel 模型冷启动时是否等待加载完成。
	WaitForModel bool `json:"wait_for_model" mapstructure:"wait_for_model"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api-inference.huggingface.co",
		EmbedModel:   "BAAI/bge-m3",
		Timeout:      120 * time.Second,
		MaxRetries:   3,
		WaitForModel: true,
	}
}

// Provider HuggingFace 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 HuggingFace 供应商。
func NewProvider(configMap map[string]any) (llm.EmbeddingProvider, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = llm.ConfigString(configMap, "base_url", cfg.BaseURL)
	cfg.APIKey = llm.ConfigString(configMap, "api_key", cfg.APIKey)
	cfg.EmbedModel = llm.ConfigString(configMap, "embed_model", cfg.EmbedModel)
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, ok := configMap["wait_for_model"].(bool); ok {
		cfg.WaitForModel = v
	}

	if cfg.APIKey == "" {
		return nil, errors.New("huggingface: api_key is required")
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 HuggingFace 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type embeddingRequest struct {
	Inputs  []string          `json:"inputs"`
	Options *embeddingOptions `json:"options,omitempty"`
}

type embeddingOptions struct {
	WaitForModel bool `json:"wait_for_model,omitempty"`
}

// Embed 调用 feature-extraction 管道生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{Inputs: texts}
	if p.config.WaitForModel {
		req.Options = &embeddingOptions{WaitForModel: true}
	}

	var raw json.RawMessage
	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", p.config.BaseURL, p.config.EmbedModel)
	headers := map[string]string{"Authorization": "Bearer " + p.config.APIKey}
	if err := p.client.PostJSON(ctx, url, headers, req, &raw); err != nil {
		return nil, fmt.Errorf("huggingface embed: %w", err)
	}
	return decodeEmbeddings(raw)
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedSingleVia(ctx, p, text)
}

// decodeEmbeddings 解析句向量 [][]float32；token 级输出 [][][]float32 做均值池化。
func decodeEmbeddings(raw []byte) ([][]float32, error) {
	var sentence [][]float32
	if err := json.Unmarshal(raw, &sentence); err == nil {
		return sentence, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("huggingface embed: unexpected response shape: %w", err)
	}
	out := make([][]float32, len(tokens))
	for i, tt := range tokens {
		if len(tt) == 0 {
			continue
		}
		mean := make([]float32, len(tt[0]))
		for _, tok := range tt {
			for j, v := range tok {
				mean[j] += v
			}
		}
		for j := range mean {
			mean[j] /= float32(len(tt))
		}
		out[i] = mean
	}
	return out, nil
}
