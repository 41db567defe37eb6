package main

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	cfgpkg "ifcheck/internal/config"
)

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "。
// - 仅按首个 '=' 分割；key 与 value 去首尾空白。
// - 成对的单/双引号去除外层引号；双引号内常见转义 \n/\t/\\/\" 作最小处理。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := unquote(strings.TrimSpace(line[eq+1:]))
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	q := val[0]
	if (q != '\'' && q != '"') || val[len(val)-1] != q {
		return val
	}
	val = val[1 : len(val)-1]
	if q == '"' {
		val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
	}
	return val
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	p := cfgpkg.EnvPrefix
	line := func(keys ...string) {
		for _, k := range keys {
			b.WriteString(k + "=\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("# ifcheck .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > " + p + "CONFIG_JSON > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源\n")
	line(p+"CONFIG_FILE", p+"CONFIG_JSON")

	b.WriteString("# 运行参数覆盖\n")
	line(p+"INPUTS", p+"CONCURRENCY", p+"MAX_RETRIES", p+"LLM", p+"LOG_LEVEL", p+"LOG_DIR", p+"METRICS_FILE")

	b.WriteString("# 组件选择\n")
	line(p+"COMPONENTS_READER", p+"COMPONENTS_SPLITTER", p+"COMPONENTS_WRITER", p+"COMPONENTS_PROMPT_BUILDER", p+"COMPONENTS_DECODER")

	b.WriteString("# 合成参数\n")
	line(p+"SYNTH_NUM_COMPLETIONS", p+"SYNTH_MAX_PARALLEL", p+"SYNTH_RETRY_DELAY_SECONDS",
		p+"SYNTH_TEMPERATURE", p+"SYNTH_TEMPERATURE_JITTER", p+"SYNTH_MAX_TOKENS", p+"SYNTH_TOP_P",
		p+"SYNTH_EXAMPLES_PER_SUBJECT", p+"SYNTH_FEW_SHOT", p+"SYNTH_SIMILARITY_THRESHOLD",
		p+"SYNTH_SUBJECTS", p+"SYNTH_SEED", p+"SYNTH_MODEL", p+"SYNTH_OUTPUT", p+"SYNTH_BYTES_PER_TOKEN")

	b.WriteString("# 偏好重排\n")
	line(p + "PREFS_SOURCE")

	b.WriteString("# Provider 覆盖（openai）\n")
	line(p+"PROVIDER__openai__CLIENT", p+"PROVIDER__openai__LIMITS_RPM", p+"PROVIDER__openai__LIMITS_TPM",
		p+"PROVIDER__openai__LIMITS_MAX_TOKENS_PER_REQ", p+"PROVIDER__openai__OPTIONS_JSON")

	b.WriteString("# 供应商 API Key（由 Provider 客户端读取，不带前缀）\n")
	line("OPENAI_API_KEY")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
