package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	cfgpkg "llmsrc/internal/config"
)

// 退出码：0 成功；1 运行期失败（会话已暂停并持久化）；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error  { return &exitError{code: exitConfig, err: err} }
func runtimeErr(err error) error { return &exitError{code: exitRuntime, err: err} }

// app 汇集命令共享的依赖；测试中替换为内存文件系统与固定环境。
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	fs      afero.Fs
	environ func() []string
	// dotenv: 启动时加载的 .env 路径；为空跳过
	dotenv string

	configPath  string
	sessionPath string
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		fs:      afero.NewOsFs(),
		environ: os.Environ,
		dotenv:  ".env",
	}
}

func main() {
	os.Exit(run(context.Background(), newApp(os.Stdout, os.Stderr), os.Args[1:]))
}

func run(ctx context.Context, a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	if !errors.Is(err, context.Canceled) {
		fprintf(a.stderr, "错误: %v\n", err)
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// cobra 用法/旗标错误
	return exitConfig
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "llmsrc",
		Short: "分块、可暂停的 LLM 源码改写（资源化字符串字面量）",
		Long: `llmsrc 将大型源文件切分为固定行数的块，逐块交给 LLM 改写，
并把结果重建、修复为单一源文件。会话持久化在磁盘上，可随时暂停、恢复、重置。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.dotenv == "" {
				return nil
			}
			// 在任何 ENV 读取前加载 .env（不覆盖已有 ENV）
			if err := cfgpkg.LoadDotEnv(a.dotenv); err != nil {
				fprintf(a.stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "配置文件（JSON/YAML）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	root.PersistentFlags().StringVar(&a.sessionPath, "session", "", "会话文件路径；缺省由 source 推导")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return configErr(err)
	})

	root.AddCommand(
		newInitConfigCmd(a),
		newRunCmd(a),
		newControlCmd(a, "pause", "请求暂停：当前块完成后停止推进"),
		newControlCmd(a, "stop", "请求停止：当前块完成后停止"),
		newControlCmd(a, "reset", "重置会话：清空全部结果并回到第一块"),
		newStatusCmd(a),
		newRenderCmd(a),
		newBlocksCmd(a),
	)
	return root
}

func fprintf(w io.Writer, format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }
