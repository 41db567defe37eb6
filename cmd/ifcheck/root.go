package main

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "ifcheck/internal/config"
	"ifcheck/internal/diag"
)

// globalFlags: 各子命令共用的旗标。
type globalFlags struct {
	config      string
	logLevel    string
	concurrency int
	status      bool
	metricsFile string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Verifiable instruction-following constraint checks",
		Long: `ifcheck verifies model responses against instruction-following constraints
(word counts, keywords, formats, casing, language, ...), evaluates JSONL datasets
against their ground truth, generates synthetic MMLU-style questions through an LLM,
and reshapes safety preference data into chosen/rejected conversations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "配置文件路径（JSON/YAML）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.IntVar(&g.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	pf.BoolVar(&g.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "运行结束后写出 Prometheus 文本格式指标（覆盖配置）")

	cmd.AddCommand(
		checkCmd(g),
		constraintsCmd(),
		evalCmd(g),
		synthCmd(g),
		prefsCmd(g),
		initConfigCmd(),
		versionCmd(),
	)
	return cmd
}

// resolveConfig 按优先级合成配置：默认 < 文件 < IFCHECK_CONFIG_JSON < ENV < CLI。
func (g *globalFlags) resolveConfig(roots []string, over cfgpkg.Config) (cfgpkg.Config, error) {
	path := g.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg := cfgpkg.Defaults()
	if path != "" {
		base, err := cfgpkg.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		base, err := cfgpkg.LoadJSON("", []byte(s))
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	if g.concurrency > 0 {
		over.Concurrency = g.concurrency
	}
	if g.logLevel != "" {
		over.Logging.Level = g.logLevel
	}
	if g.metricsFile != "" {
		over.Metrics.File = g.metricsFile
	}
	if len(roots) > 0 {
		over.Inputs = roots
	}
	return cfgpkg.Merge(cfg, over), nil
}

// session: 单次命令运行的日志器、终端与计时。
type session struct {
	cfg    cfgpkg.Config
	logger *diag.Logger
	term   *diag.Terminal
	start  time.Time
}

func (g *globalFlags) begin(cmd *cobra.Command, cfg cfgpkg.Config) *session {
	s := &session{cfg: cfg, start: time.Now()}
	s.logger = diag.NewLoggerIn(cfg.Logging.Dir, uuid.NewString(), cfg.Logging.Level)
	s.term = diag.NewTerminal(cmd.ErrOrStderr(), g.status)
	diag.SetTerminal(s.term)
	s.term.RunStart(cmd.Name(), cfg.Concurrency)
	s.logger.DebugStart("config", "effective", "", "", effectiveKV(cfg))
	return s
}

// end 记录运行结果、导出指标并释放资源；返回应交给 cobra 的错误。
func (s *session) end(comp string, err error) error {
	defer func() {
		diag.SetTerminal(nil)
		_ = s.logger.Close()
	}()
	if err != nil {
		code := string(diag.Classify(err))
		s.logger.Error(comp, code, "first error: "+err.Error(), &s.start)
		diag.IncOp(comp, "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError(comp, code)
		}
	} else {
		diag.IncOp(comp, "finish", "success")
		diag.ObserveDuration(comp, "finish", time.Since(s.start).Milliseconds())
		s.logger.InfoFinish(comp, "run", s.start, 0)
	}
	s.term.RunFinish(err == nil, time.Since(s.start))
	if merr := diag.WriteMetrics(s.cfg.Metrics.File); merr != nil {
		s.logger.Warn(comp, string(diag.Classify(merr)), "write metrics: "+merr.Error(), nil)
		if err == nil {
			return runtimeErr("write metrics: %w", merr)
		}
	}
	if err == nil {
		return nil
	}
	return runtimeErr("运行失败: %w", err)
}

// effectiveKV 提取有效配置中的非敏感项（debug 日志用）。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	kv := map[string]string{
		"inputs_count":   strconv.Itoa(len(cfg.Inputs)),
		"concurrency":    strconv.Itoa(cfg.Concurrency),
		"reader":         cfg.Components.Reader,
		"splitter":       cfg.Components.Splitter,
		"writer":         cfg.Components.Writer,
		"prompt_builder": cfg.Components.PromptBuilder,
		"decoder":        cfg.Components.Decoder,
		"llm":            cfg.LLM,
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		var s struct {
			BaseURL string `json:"base_url"`
			Model   string `json:"model"`
		}
		_ = json.Unmarshal(p.Options, &s)
		if s.BaseURL != "" {
			kv["base_url"] = s.BaseURL
		}
		if s.Model != "" {
			kv["model"] = s.Model
		}
	}
	return kv
}
