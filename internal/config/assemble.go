package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ifcheck/internal/diag"
	"ifcheck/internal/pipeline"
	"ifcheck/internal/prefs"
	"ifcheck/internal/rate"
	"ifcheck/internal/synth"
	"ifcheck/pkg/contract"
	"ifcheck/pkg/registry"
)

// Validate 对各命令共用的最小边界做静态校验（输入、并发、日志、I/O 组件）。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: max_retries must be >= 0")
	}
	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" {
		if _, ok := diag.ParseLevel(lv); !ok {
			return fmt.Errorf("config: unknown logging.level %q", lv)
		}
	}
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Splitter, d.Components.Splitter); registry.Splitter[name] == nil {
		return fmt.Errorf("config: splitter %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// ValidateSynth 在 Validate 之上校验 LLM provider、生成组件与生成参数。
func ValidateSynth(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if cfg.LLM == "" {
		return errors.New("config: llm not set")
	}
	prov, ok := cfg.Provider[cfg.LLM]
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.LLM)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.LLM)
	}
	if registry.LLMClient[prov.Client] == nil {
		return fmt.Errorf("config: llm client %q not registered", prov.Client)
	}
	d := Defaults()
	if name := effName(cfg.Components.PromptBuilder, d.Components.PromptBuilder); registry.PromptBuilder[name] == nil {
		return fmt.Errorf("config: prompt_builder %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Components.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	s := cfg.Synth
	switch {
	case s.NumCompletions < 0, s.MaxParallel < 0, s.MaxTokens < 0, s.ExamplesPerSubject < 0, s.FewShot < 0, s.BytesPerToken < 0:
		return errors.New("config: synth counts must be >= 0")
	case s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1:
		return errors.New("config: synth.similarity_threshold must be in [0,1]")
	case s.Temperature < 0 || s.Temperature > 2:
		return errors.New("config: synth.temperature must be in [0,2]")
	case s.TopP < 0 || s.TopP > 1:
		return errors.New("config: synth.top_p must be in [0,1]")
	case s.RetryDelaySeconds != nil && *s.RetryDelaySeconds < 0:
		return errors.New("config: synth.retry_delay_seconds must be >= 0")
	case s.TemperatureJitter != nil && *s.TemperatureJitter < 0:
		return errors.New("config: synth.temperature_jitter must be >= 0")
	}
	if prov.Limits.MaxTokensPerReq > 0 && s.MaxTokens > prov.Limits.MaxTokensPerReq {
		return fmt.Errorf("config: synth.max_tokens(%d) exceeds provider.max_tokens_per_req(%d)", s.MaxTokens, prov.Limits.MaxTokensPerReq)
	}
	return nil
}

// readerSplitterWriter 构造三件 I/O 组件。严格 Options 解析在 registry（工厂）层进行。
func readerSplitterWriter(cfg Config) (contract.Reader, contract.Splitter, contract.Writer, error) {
	d := Defaults()
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Components.Reader)](cfg.Options.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reader: %w", err)
	}
	s, err := registry.Splitter[effName(cfg.Components.Splitter, d.Components.Splitter)](cfg.Options.Splitter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("splitter: %w", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Components.Writer)](cfg.Options.Writer)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("writer: %w", err)
	}
	return r, s, w, nil
}

// AssembleEval 构造评测流水线的组件与运行设置。
func AssembleEval(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	r, s, w, err := readerSplitterWriter(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	return pipeline.Components{Reader: r, Splitter: s, Writer: w},
		pipeline.Settings{Inputs: cloneStrings(cfg.Inputs), Concurrency: cfg.Concurrency},
		nil
}

// AssemblePrefs 构造偏好重排的组件与运行设置。
func AssemblePrefs(cfg Config) (prefs.Components, prefs.Settings, error) {
	if err := Validate(cfg); err != nil {
		return prefs.Components{}, prefs.Settings{}, err
	}
	r, s, w, err := readerSplitterWriter(cfg)
	if err != nil {
		return prefs.Components{}, prefs.Settings{}, err
	}
	return prefs.Components{Reader: r, Splitter: s, Writer: w},
		prefs.Settings{Inputs: cloneStrings(cfg.Inputs), Source: cfg.Prefs.Source},
		nil
}

// AssembleSynth 构造合成流水线的组件、运行设置与限流 Gate。
func AssembleSynth(cfg Config) (synth.Components, synth.Settings, error) {
	if err := ValidateSynth(cfg); err != nil {
		return synth.Components{}, synth.Settings{}, err
	}
	r, s, w, err := readerSplitterWriter(cfg)
	if err != nil {
		return synth.Components{}, synth.Settings{}, err
	}
	d := Defaults()
	pb, err := registry.PromptBuilder[effName(cfg.Components.PromptBuilder, d.Components.PromptBuilder)](cfg.Options.PromptBuilder)
	if err != nil {
		return synth.Components{}, synth.Settings{}, fmt.Errorf("prompt_builder: %w", err)
	}
	dec, err := registry.Decoder[effName(cfg.Components.Decoder, d.Components.Decoder)](cfg.Options.Decoder)
	if err != nil {
		return synth.Components{}, synth.Settings{}, fmt.Errorf("decoder: %w", err)
	}

	prov := cfg.Provider[cfg.LLM]
	llm, err := registry.LLMClient[prov.Client](prov.Options)
	if err != nil {
		return synth.Components{}, synth.Settings{}, fmt.Errorf("llm %s: %w", cfg.LLM, err)
	}

	// 限流分组键优先从 API Key 派生；失败则退化为 provider 名称。
	key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, prov.Options)
	if derr != nil {
		key = rate.LimitKey(cfg.LLM)
	}
	gate := rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, TPM: prov.Limits.TPM, MaxTokensPerReq: prov.Limits.MaxTokensPerReq},
	}, nil)

	sc := cfg.Synth
	set := synth.Settings{
		Inputs:              cloneStrings(cfg.Inputs),
		NumCompletions:      sc.NumCompletions,
		MaxParallel:         sc.MaxParallel,
		MaxRetries:          cfg.MaxRetries,
		Temperature:         sc.Temperature,
		MaxTokens:           sc.MaxTokens,
		TopP:                sc.TopP,
		ExamplesPerSubject:  sc.ExamplesPerSubject,
		FewShot:             sc.FewShot,
		SimilarityThreshold: sc.SimilarityThreshold,
		Subjects:            cloneStrings(sc.Subjects),
		Seed:                sc.Seed,
		Model:               modelName(sc.Model, llm, cfg.LLM),
		OutputID:            contract.ArtifactID(sc.Output),
		BytesPerToken:       sc.BytesPerToken,
		Gate:                gate,
		GateKey:             key,
	}
	if sc.RetryDelaySeconds != nil {
		set.RetryDelay = time.Duration(*sc.RetryDelaySeconds * float64(time.Second))
	}
	if sc.TemperatureJitter != nil {
		set.TemperatureJitter = *sc.TemperatureJitter
	}
	comp := synth.Components{
		Reader:        r,
		Splitter:      s,
		PromptBuilder: pb,
		LLM:           llm,
		Decoder:       dec,
		Writer:        w,
	}
	return comp, set, nil
}

// modelName: 显式配置 > 客户端模型名 > provider 名。
func modelName(explicit string, llm contract.LLMClient, provider string) string {
	if explicit != "" {
		return explicit
	}
	if m, ok := llm.(interface{ Model() string }); ok && m.Model() != "" {
		return m.Model()
	}
	return provider
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
