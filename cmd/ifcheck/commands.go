package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	cfgpkg "ifcheck/internal/config"
	"ifcheck/internal/diag"
	"ifcheck/internal/pipeline"
	"ifcheck/pkg/registry"
)

// checkOutput: check 子命令的 JSON 输出。
type checkOutput struct {
	Constraint string   `json:"constraint"`
	Pass       bool     `json:"pass"`
	Measured   *int     `json:"measured,omitempty"`
	Found      []string `json:"found,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func checkCmd(g *globalFlags) *cobra.Command {
	var (
		constraint string
		args       string
		text       string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check one response against one constraint",
		Long: `Check one response text against a single constraint. The text comes from --text
or, when the flag is absent, from STDIN. Prints the result as JSON and exits 0 when the
constraint holds, 1 otherwise.`,
		Example: `  ifcheck check --constraint validate_lowercase --text "all lower case"
  echo "one two three" | ifcheck check --constraint validate_word_constraint --args '{"N":3,"quantifier":"around"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("text") {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return runtimeErr("read stdin: %w", err)
				}
				text = string(b)
			}
			out := checkOutput{Constraint: constraint}
			res, err := registry.Verify(constraint, text, json.RawMessage(args))
			result := "fail"
			switch {
			case err != nil:
				out.Error = err.Error()
				result = "error"
			case res.Pass:
				result = "pass"
			}
			out.Pass, out.Measured, out.Found = res.Pass, res.Measured, res.Found
			if _, known := registry.Constraint[constraint]; known {
				diag.IncCheck(constraint, result)
			}
			if merr := diag.WriteMetrics(g.metricsFile); merr != nil {
				return runtimeErr("write metrics: %w", merr)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			if werr := enc.Encode(out); werr != nil {
				return runtimeErr("write result: %w", werr)
			}
			if !out.Pass {
				return &exitError{code: exitFail}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&constraint, "constraint", "", "约束标识（见 constraints 子命令）")
	cmd.Flags().StringVar(&args, "args", "{}", "约束参数（JSON 对象）")
	cmd.Flags().StringVar(&text, "text", "", "待检查文本；缺省读取 STDIN")
	_ = cmd.MarkFlagRequired("constraint")
	return cmd
}

func constraintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "constraints",
		Short: "List constraint identifiers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, n := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		},
	}
}

func evalCmd(g *globalFlags) *cobra.Command {
	var byConstraint bool
	cmd := &cobra.Command{
		Use:   "eval [roots...]",
		Short: "Evaluate JSONL responses against their ground-truth constraints",
		Long: `Evaluate every JSONL record {"id", "response"|"output", "ground_truth"} under the given
roots (files, directories or "-" for STDIN). Writes <file>.results.jsonl per input and
summary.json through the configured writer. Failed checks do not change the exit code.`,
		RunE: func(cmd *cobra.Command, roots []string) error {
			cfg, err := g.resolveConfig(roots, cfgpkg.Config{})
			if err != nil {
				return configErr("配置解析失败: %w", err)
			}
			if err := cfgpkg.Validate(cfg); err != nil {
				dumpConfig(cmd.ErrOrStderr(), cfg)
				return configErr("配置校验失败: %w", err)
			}
			if err := preflightCheckOutputDir(cfg); err != nil {
				return configErr("输出目录不可写或无法创建: %w", err)
			}
			comp, set, err := cfgpkg.AssembleEval(cfg)
			if err != nil {
				return configErr("装配失败: %w", err)
			}
			s := g.begin(cmd, cfg)
			ctx, stop := signalContext()
			defer stop()
			sum, err := evalRun(ctx, comp, set, s.logger)
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), sum.String())
				if byConstraint {
					printTallies(cmd.OutOrStdout(), sum)
				}
			}
			return s.end("pipeline", err)
		},
	}
	cmd.Flags().BoolVar(&byConstraint, "by-constraint", false, "print passed/total per constraint after the summary line")
	return cmd
}

// printTallies 按约束标识字典序逐行输出 "<id> passed/total"。
func printTallies(w io.Writer, sum pipeline.Summary) {
	for _, id := range sum.SortedConstraints() {
		t := sum.ByConstraint[id]
		fmt.Fprintf(w, "%s %d/%d\n", id, t.Passed, t.Total)
	}
}

func synthCmd(g *globalFlags) *cobra.Command {
	var llm string
	cmd := &cobra.Command{
		Use:   "synth [roots...]",
		Short: "Generate synthetic MMLU-style questions from seed questions",
		Long: `Generate new multiple-choice questions per subject with an LLM, using seed questions
{question, subject, choices, answer} read from the given roots as few-shot examples.
Near-duplicate completions are filtered; the parsed questions are written as one JSON array.`,
		RunE: func(cmd *cobra.Command, roots []string) error {
			cfg, err := g.resolveConfig(roots, cfgpkg.Config{LLM: llm})
			if err != nil {
				return configErr("配置解析失败: %w", err)
			}
			if err := cfgpkg.ValidateSynth(cfg); err != nil {
				dumpConfig(cmd.ErrOrStderr(), cfg)
				return configErr("配置校验失败: %w", err)
			}
			if err := preflightCheckOutputDir(cfg); err != nil {
				return configErr("输出目录不可写或无法创建: %w", err)
			}
			comp, set, err := cfgpkg.AssembleSynth(cfg)
			if err != nil {
				return configErr("装配失败: %w", err)
			}
			s := g.begin(cmd, cfg)
			ctx, stop := signalContext()
			defer stop()
			qs, err := synthRun(ctx, comp, set, s.logger)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "generated=%d model=%s\n", len(qs), set.Model)
			}
			return s.end("synth", err)
		},
	}
	cmd.Flags().StringVar(&llm, "llm", "", "provider 名称（覆盖配置）")
	return cmd
}

func prefsCmd(g *globalFlags) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "prefs [roots...]",
		Short: "Reshape safety preference rows into chosen/rejected conversations",
		Long: `Convert rows {prompt, response_0, response_1, safer_response_id} into
{chosen, rejected, source} conversation pairs, one <file>.preferences.jsonl per input.`,
		RunE: func(cmd *cobra.Command, roots []string) error {
			cfg, err := g.resolveConfig(roots, cfgpkg.Config{Prefs: cfgpkg.Prefs{Source: source}})
			if err != nil {
				return configErr("配置解析失败: %w", err)
			}
			if err := cfgpkg.Validate(cfg); err != nil {
				dumpConfig(cmd.ErrOrStderr(), cfg)
				return configErr("配置校验失败: %w", err)
			}
			if err := preflightCheckOutputDir(cfg); err != nil {
				return configErr("输出目录不可写或无法创建: %w", err)
			}
			comp, set, err := cfgpkg.AssemblePrefs(cfg)
			if err != nil {
				return configErr("装配失败: %w", err)
			}
			s := g.begin(cmd, cfg)
			ctx, stop := signalContext()
			defer stop()
			st, err := prefsRun(ctx, comp, set, s.logger)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "files=%d pairs=%d skipped=%d\n", st.Files, st.Pairs, st.Skipped)
			}
			return s.end("prefs", err)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "输出记录的 source 字段（覆盖配置）")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write config.json and .env templates (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
