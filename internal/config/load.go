package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"ifcheck/internal/diag"
	"ifcheck/internal/prefs"
	"ifcheck/internal/synth"
)

// EnvPrefix: 环境变量覆盖的统一前缀。
const EnvPrefix = "IFCHECK_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：LLM 不设默认（synth 必须由 JSON/ENV/CLI 提供）。
func Defaults() Config {
	delay := synth.DefaultRetryDelay.Seconds()
	jitter := synth.DefaultTemperatureJitter
	return Config{
		Concurrency: 4,
		MaxRetries:  synth.DefaultMaxRetries,
		Logging:     Logging{Level: "info", Dir: diag.DefaultLogDir},
		Components: Components{
			Reader:        "fs",
			Splitter:      "jsonl",
			Writer:        "fs",
			PromptBuilder: "mmlu",
			Decoder:       "mmlu",
		},
		Synth: Synth{
			NumCompletions:      synth.DefaultNumCompletions,
			MaxParallel:         synth.DefaultMaxParallel,
			RetryDelaySeconds:   &delay,
			Temperature:         synth.DefaultTemperature,
			TemperatureJitter:   &jitter,
			MaxTokens:           synth.DefaultMaxTokens,
			TopP:                synth.DefaultTopP,
			ExamplesPerSubject:  synth.DefaultExamplesPerSubject,
			FewShot:             synth.DefaultFewShot,
			SimilarityThreshold: synth.DefaultSimilarityThreshold,
		},
		Prefs: Prefs{Source: prefs.DefaultSource},
	}
}

// Load 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func Load(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	}
	return LoadJSON(path, nil)
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 解析 YAML 配置：先解为通用树再转 JSON，复用 JSON 的严格解码与原样 Options。
func LoadYAML(path string, raw []byte) (Config, error) {
	if len(raw) == 0 {
		if path == "" {
			return Config{}, errors.New("no config source provided")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		raw = b
	}
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	if tree == nil {
		return Config{}, nil
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("yaml to json: %w", err)
	}
	return LoadJSON("", js)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.MaxRetries != 0 {
		out.MaxRetries = over.MaxRetries
	}
	if v := strings.TrimSpace(over.Logging.Level); v != "" {
		out.Logging.Level = v
	}
	if v := strings.TrimSpace(over.Logging.Dir); v != "" {
		out.Logging.Dir = v
	}
	if v := strings.TrimSpace(over.Metrics.File); v != "" {
		out.Metrics.File = v
	}

	// 组件名（空不覆盖）
	setStr(&out.Components.Reader, over.Components.Reader)
	setStr(&out.Components.Splitter, over.Components.Splitter)
	setStr(&out.Components.Writer, over.Components.Writer)
	setStr(&out.Components.PromptBuilder, over.Components.PromptBuilder)
	setStr(&out.Components.Decoder, over.Components.Decoder)

	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		prov := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			prov[k] = v
		}
		for k, v := range over.Provider {
			prov[k] = v
		}
		out.Provider = prov
	}

	// Options（完整替换对应键）
	setRaw(&out.Options.Reader, over.Options.Reader)
	setRaw(&out.Options.Splitter, over.Options.Splitter)
	setRaw(&out.Options.Writer, over.Options.Writer)
	setRaw(&out.Options.PromptBuilder, over.Options.PromptBuilder)
	setRaw(&out.Options.Decoder, over.Options.Decoder)

	if v := strings.TrimSpace(over.LLM); v != "" {
		out.LLM = v
	}
	out.Synth = mergeSynth(out.Synth, over.Synth)
	setStr(&out.Prefs.Source, over.Prefs.Source)
	return out
}

func mergeSynth(base, over Synth) Synth {
	out := base
	if over.NumCompletions != 0 {
		out.NumCompletions = over.NumCompletions
	}
	if over.MaxParallel != 0 {
		out.MaxParallel = over.MaxParallel
	}
	if over.RetryDelaySeconds != nil {
		v := *over.RetryDelaySeconds
		out.RetryDelaySeconds = &v
	}
	if over.Temperature != 0 {
		out.Temperature = over.Temperature
	}
	if over.TemperatureJitter != nil {
		v := *over.TemperatureJitter
		out.TemperatureJitter = &v
	}
	if over.MaxTokens != 0 {
		out.MaxTokens = over.MaxTokens
	}
	if over.TopP != 0 {
		out.TopP = over.TopP
	}
	if over.ExamplesPerSubject != 0 {
		out.ExamplesPerSubject = over.ExamplesPerSubject
	}
	if over.FewShot != 0 {
		out.FewShot = over.FewShot
	}
	if over.SimilarityThreshold != 0 {
		out.SimilarityThreshold = over.SimilarityThreshold
	}
	if len(over.Subjects) > 0 {
		out.Subjects = cloneStrings(over.Subjects)
	}
	if over.Seed != 0 {
		out.Seed = over.Seed
	}
	setStr(&out.Model, over.Model)
	setStr(&out.Output, over.Output)
	if over.BytesPerToken != 0 {
		out.BytesPerToken = over.BytesPerToken
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 IFCHECK_；集合之外的键忽略，数值解析失败的键忽略。
// 支持：INPUTS, CONCURRENCY, MAX_RETRIES, LLM, LOG_LEVEL, LOG_DIR, METRICS_FILE, COMPONENTS_*,
// SYNTH_*, PREFS_SOURCE
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,TPM,MAX_TOKENS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := kv[len(EnvPrefix):eq]
		val := kv[eq+1:]
		tv := strings.TrimSpace(val)
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CONCURRENCY":
			setInt(&over.Concurrency, val)
		case "MAX_RETRIES":
			setInt(&over.MaxRetries, val)
		case "LLM":
			over.LLM = tv
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "LOG_DIR":
			over.Logging.Dir = tv
		case "METRICS_FILE":
			over.Metrics.File = tv
		case "COMPONENTS_READER":
			over.Components.Reader = tv
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		case "COMPONENTS_PROMPT_BUILDER":
			over.Components.PromptBuilder = tv
		case "COMPONENTS_DECODER":
			over.Components.Decoder = tv
		case "PREFS_SOURCE":
			over.Prefs.Source = tv
		default:
			switch {
			case strings.HasPrefix(nk, "SYNTH_"):
				synthEnv(&over.Synth, strings.TrimPrefix(nk, "SYNTH_"), val)
			case strings.HasPrefix(nk, "PROVIDER__"):
				providerEnv(prov, nk, val)
			}
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func synthEnv(s *Synth, field, val string) {
	switch field {
	case "NUM_COMPLETIONS":
		setInt(&s.NumCompletions, val)
	case "MAX_PARALLEL":
		setInt(&s.MaxParallel, val)
	case "RETRY_DELAY_SECONDS":
		if v, err := atof(val); err == nil {
			s.RetryDelaySeconds = &v
		}
	case "TEMPERATURE":
		setFloat(&s.Temperature, val)
	case "TEMPERATURE_JITTER":
		if v, err := atof(val); err == nil {
			s.TemperatureJitter = &v
		}
	case "MAX_TOKENS":
		setInt(&s.MaxTokens, val)
	case "TOP_P":
		setFloat(&s.TopP, val)
	case "EXAMPLES_PER_SUBJECT":
		setInt(&s.ExamplesPerSubject, val)
	case "FEW_SHOT":
		setInt(&s.FewShot, val)
	case "SIMILARITY_THRESHOLD":
		setFloat(&s.SimilarityThreshold, val)
	case "SUBJECTS":
		s.Subjects = splitComma(val)
	case "SEED":
		if v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			s.Seed = v
		}
	case "MODEL":
		s.Model = strings.TrimSpace(val)
	case "OUTPUT":
		s.Output = strings.TrimSpace(val)
	case "BYTES_PER_TOKEN":
		setInt(&s.BytesPerToken, val)
	}
}

// providerEnv 处理 PROVIDER__name__FIELD；仅在发生有效变更时记录该 provider，避免空值覆盖配置文件。
func providerEnv(prov map[string]Provider, nk, val string) {
	parts := strings.Split(nk, "__")
	if len(parts) < 3 {
		return
	}
	name := strings.TrimSpace(parts[1])
	if name == "" {
		return
	}
	field := strings.Join(parts[2:], "__")
	p := prov[name]
	changed := false
	switch field {
	case "CLIENT":
		if tv := strings.TrimSpace(val); tv != "" {
			p.Client = tv
			changed = true
		}
	case "LIMITS_RPM":
		changed = setInt(&p.Limits.RPM, val)
	case "LIMITS_TPM":
		changed = setInt(&p.Limits.TPM, val)
	case "LIMITS_MAX_TOKENS_PER_REQ":
		changed = setInt(&p.Limits.MaxTokensPerReq, val)
	case "OPTIONS_JSON":
		// 原样 JSON；空值视为未设置
		if strings.TrimSpace(val) != "" {
			p.Options = json.RawMessage(val)
			changed = true
		}
	}
	if changed {
		prov[name] = p
	}
}

func setStr(dst *string, v string) {
	if t := strings.TrimSpace(v); t != "" {
		*dst = t
	}
}

func setRaw(dst *json.RawMessage, v json.RawMessage) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

func setInt(dst *int, s string) bool {
	v, err := atoi(s)
	if err != nil {
		return false
	}
	*dst = v
	return true
}

func setFloat(dst *float64, s string) {
	if v, err := atof(s); err == nil {
		*dst = v
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func atof(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
