package config

import "encoding/json"

// DefaultTemplateConfig 返回一个可直接运行的配置模板：
// 使用 mock LLM 与合理限额，默认输入为 STDIN（"-"），Writer 输出到 ./out。
// 选项包含全部键并给出中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:      []string{"-"},
		Concurrency: d.Concurrency,
		MaxRetries:  d.MaxRetries,
		Logging:     d.Logging,
		Metrics:     Metrics{File: ""},
		Components:  d.Components,
		LLM:         "mock",
		Provider: map[string]Provider{
			"mock": {
				Client:  "mock",
				Options: json.RawMessage(`{"api_key":"","response_mode":"mmlu","seed":0}`),
				Limits:  Limits{RPM: 600, TPM: 1000000, MaxTokensPerReq: 0},
			},
			"openai": {
				Client: "openai",
				Options: json.RawMessage(`{
  "base_url": "",
  "model": "gpt-4",
  "api_key_env": "OPENAI_API_KEY",
  "api_key": "",
  "organization": "",
  "timeout_seconds": 120,
  "max_completion_tokens": false
}`),
				Limits: Limits{RPM: 0, TPM: 0, MaxTokensPerReq: 0},
			},
		},
		Synth: d.Synth,
		Prefs: d.Prefs,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "extensions": [".jsonl"],
  "skip_suffixes": [".results.jsonl", ".preferences.jsonl"]
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "max_line_bytes": 0,
  "disable_array": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": false,
  "no_clobber": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.PromptBuilder = json.RawMessage(`{
  "inline_system_prompt": "",
  "system_prompt_path": "",
  "inline_user_template": "",
  "user_template_path": "",
  "variations": []
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "match_answer_text": false
}`)
	return cfg
}
