package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"ifcheck/internal/pipeline"
	"ifcheck/internal/prefs"
	"ifcheck/internal/synth"
)

const (
	Version = "0.1.0"
	appName = "ifcheck"
)

// 运行入口可替换，便于测试。
var (
	evalRun  = pipeline.Run
	synthRun = synth.Run
	prefsRun = prefs.Run
)

// 退出码：0 成功；1 运行失败或检查未通过；3 配置错误。
const (
	exitOK     = 0
	exitFail   = 1
	exitConfig = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError 携带退出码；err 为空时不打印。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, err)}
}

func runtimeErr(format string, err error) error {
	return &exitError{code: exitFail, err: fmt.Errorf(format, err)}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	root := rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fprintf(stderr, "%s: %v\n", appName, ee.err)
		}
		return ee.code
	}
	// 旗标/参数解析错误
	fprintf(stderr, "%s: %v\n", appName, err)
	return exitConfig
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
