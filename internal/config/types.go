package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// MaxRetries: 合成阶段单批最大尝试次数（>=1）；0 表示使用默认值。
	MaxRetries int     `json:"max_retries"`
	Logging    Logging `json:"logging"`
	Metrics    Metrics `json:"metrics"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// LLM Provider 选择与定义（仅 synth 使用）。
	LLM      string              `json:"llm"`
	Provider map[string]Provider `json:"provider"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	Synth Synth `json:"synth"`
	Prefs Prefs `json:"prefs"`
}

// Logging: 日志等级与目录；目录为 "-" 时写 stderr。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Metrics: 指标文本导出路径；为空不导出。
type Metrics struct {
	File string `json:"file"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader        string `json:"reader"`
	Splitter      string `json:"splitter"`
	Writer        string `json:"writer"`
	PromptBuilder string `json:"prompt_builder"`
	Decoder       string `json:"decoder"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader        json.RawMessage `json:"reader"`
	Splitter      json.RawMessage `json:"splitter"`
	Writer        json.RawMessage `json:"writer"`
	PromptBuilder json.RawMessage `json:"prompt_builder"`
	Decoder       json.RawMessage `json:"decoder"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string          `json:"client"`
	Options json.RawMessage `json:"options"`
	Limits  Limits          `json:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `json:"rpm"`
	TPM             int `json:"tpm"`
	MaxTokensPerReq int `json:"max_tokens_per_req"`
}

// Synth: 合成题目生成参数。零值表示使用默认；0 有语义的字段使用指针。
type Synth struct {
	NumCompletions      int      `json:"num_completions"`
	MaxParallel         int      `json:"max_parallel"`
	RetryDelaySeconds   *float64 `json:"retry_delay_seconds"`
	Temperature         float64  `json:"temperature"`
	TemperatureJitter   *float64 `json:"temperature_jitter"`
	MaxTokens           int      `json:"max_tokens"`
	TopP                float64  `json:"top_p"`
	ExamplesPerSubject  int      `json:"examples_per_subject"`
	FewShot             int      `json:"few_shot"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	Subjects            []string `json:"subjects"`
	Seed                int64    `json:"seed"`
	// Model: 输出文件名中的模型名；为空时取 LLM 客户端的模型或 provider 名。
	Model string `json:"model"`
	// Output: 输出工件名；为空时为 synthetic_mmlu_data_<model>.json。
	Output        string `json:"output"`
	BytesPerToken int    `json:"bytes_per_token"`
}

// Prefs: 偏好重排参数。
type Prefs struct {
	Source string `json:"source"`
}
