// Package llm provides embedding provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/kart-io/qgpt/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*ProviderOptions)(nil)

const defaultOllamaURL = "http://localhost:11434"

// ProviderOptions 定义 Embedding 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（ollama, openai, huggingface）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥，为空时读取 QGPT_EMBED_API_KEY。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 向量模型名称。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 单次请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置（本地 ollama + bge-m3）。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "ollama",
		BaseURL:    defaultOllamaURL,
		Model:      "bge-m3",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// ToConfigMap 转换为供应商工厂使用的配置 map。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"api_key":     o.APIKey,
		"embed_model": o.Model,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// AddFlags adds flags for the embedding provider to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "embedding."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Embedding provider (ollama, openai, huggingface).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "Embedding API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "Embedding API key.")
	fs.StringVar(&o.Model, p+"model", o.Model, "Embedding model name.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Embedding request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Embedding maximum number of retries.")
}

// Validate validates the embedding provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("embedding provider is required"))
	}
	if o.BaseURL == "" && o.Provider == "ollama" {
		errs = append(errs, fmt.Errorf("embedding base-url is required for ollama provider"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("embedding model is required"))
	}
	// OpenAI 需要 API key
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("embedding api-key is required for openai provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("embedding timeout must be positive"))
	}
	return errs
}

// Complete completes the provider options with defaults.
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("QGPT_EMBED_API_KEY")
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 3
	}
	// 非 ollama 供应商未显式配置地址时使用其自身默认地址
	if o.Provider != "ollama" && o.BaseURL == defaultOllamaURL {
		o.BaseURL = ""
	}
	return nil
}
