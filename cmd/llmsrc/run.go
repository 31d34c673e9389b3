package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "llmsrc/internal/config"
	"llmsrc/internal/diag"
	"llmsrc/internal/pipeline"
	"llmsrc/internal/session"
	"llmsrc/pkg/contract"
)

type runFlags struct {
	ov          overrides
	steps       int
	status      bool
	metricsFile string
	fresh       bool
	export      bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "启动或恢复会话，逐块调用 LLM 直到完成、失败或收到暂停/停止请求",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSession(cmd.Context(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.ov.source, "source", "", "源文件（\"-\" 表示 STDIN；覆盖配置）")
	fl.StringVar(&f.ov.mapping, "mapping", "", "资源映射文件（覆盖配置）")
	fl.StringVar(&f.ov.llm, "llm", "", "provider 名称（覆盖配置）")
	fl.IntVar(&f.ov.blockSize, "block-size", 0, "每块行数（覆盖配置）")
	fl.IntVar(&f.ov.maxTokens, "max-tokens", 0, "单次请求输入 token 预算（覆盖配置）")
	fl.IntVar(&f.steps, "steps", 0, "本次最多推进的块数，达到后暂停；0 表示不限制")
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "结束时以 Prometheus textfile 格式写出指标")
	fl.BoolVar(&f.fresh, "fresh", false, "丢弃与源文件不匹配的旧会话并重新开始")
	fl.BoolVar(&f.export, "export", true, "全部块完成后写出重建文档与诊断边车")
	return cmd
}

func (a *app) runSession(ctx context.Context, f runFlags) error {
	start := time.Now()
	cfg, err := a.loadConfig(f.ov)
	if err != nil {
		return err
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		return configErr(fmt.Errorf("配置校验失败: %w", err))
	}
	logger := diag.NewLogger(uuid.NewString(), cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()
	logger.DebugStart("config", "effective", "", "", cfgpkg.Summary(cfg))

	comp, set, err := cfgpkg.Assemble(cfg, a.fs)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "assemble failed", &start)
		return configErr(fmt.Errorf("装配失败: %w", err))
	}
	set.MaxSteps = f.steps

	plan, err := pipeline.Prepare(ctx, comp, set, logger)
	if err != nil {
		return runtimeErr(err)
	}
	store := session.NewStore(a.fs, cfgpkg.SessionPath(cfg))
	s, err := a.openSession(store, plan, set, f.fresh)
	if err != nil {
		return err
	}

	term := diag.NewTerminal(a.stderr, f.status)
	term.RunStart(cfg.LLM, cfg.BlockSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctl := make(chan session.Command, 1)
	stopSignals := watchSignals(ctl, cancel, a.stderr)
	defer stopSignals()

	r := &pipeline.Runner{Comp: comp, Set: set, Plan: plan, Store: store, Logger: logger, Term: term, Control: ctl}
	runErr := r.Run(ctx, s)
	a.writeMetrics(f.metricsFile, logger)
	if runErr != nil {
		logger.Error("pipeline", string(diag.Classify(runErr)), "run failed", &start)
		if !errors.Is(runErr, context.Canceled) {
			fprintf(a.stderr, "会话已暂停于块 %d/%d；处理后再次执行 run 从该块继续\n", s.Cursor+1, s.Len())
		}
		return runtimeErr(runErr)
	}
	if s.Done() && f.export {
		rep, err := r.Export(ctx, s, exportName(cfg.Source))
		if err != nil {
			return runtimeErr(err)
		}
		fprintf(a.stderr, "已写出 %s（告警 %d，修正建议 %d）\n", exportName(cfg.Source), len(rep.Warnings), len(rep.Corrections))
	}
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	return nil
}

// openSession 恢复已有会话；不存在时新建。源或分块参数变化时拒绝恢复，除非 fresh。
func (a *app) openSession(store *session.Store, plan *pipeline.Plan, set pipeline.Settings, fresh bool) (*session.Session, error) {
	s, err := store.Load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return plan.NewSession(set.Source, set.BlockSize), nil
	case err != nil && !fresh:
		return nil, runtimeErr(fmt.Errorf("会话读取失败（可使用 --fresh 重新开始）: %w", err))
	case err != nil:
		return plan.NewSession(set.Source, set.BlockSize), nil
	}
	if !s.Matches(plan.Digest, len(plan.Blocks)) {
		if !fresh {
			return nil, runtimeErr(fmt.Errorf("%w: 会话 %s 与当前源文件或块大小不一致（可使用 --fresh 重新开始）",
				contract.ErrStateInvalid, store.Path()))
		}
		return plan.NewSession(set.Source, set.BlockSize), nil
	}
	return s, nil
}

func (a *app) writeMetrics(path string, logger *diag.Logger) {
	if path == "" {
		return
	}
	if err := diag.WriteTextfile(path); err != nil {
		logger.Warn("diag", "metrics textfile failed", "", map[string]string{"err": err.Error()})
		fprintf(a.stderr, "提示：指标写出失败：%v\n", err)
	}
}

// exportName: 导出文档名取源文件名；STDIN 时为 stdin.java。
func exportName(source string) contract.ArtifactID {
	if source == "" || source == "-" {
		return "stdin.java"
	}
	return contract.ArtifactID(filepath.Base(source))
}

// watchSignals: 第一次中断请求暂停（块之间生效），第二次立即取消在途调用。
func watchSignals(ctl chan<- session.Command, cancel context.CancelFunc, stderr io.Writer) (stop func()) {
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n := 0
		for {
			select {
			case <-done:
				return
			case <-sigc:
				n++
				if n > 1 {
					cancel()
					return
				}
				select {
				case ctl <- session.CmdPause:
				default:
				}
				fprintf(stderr, "收到中断：当前块完成后暂停（再次中断立即取消）\n")
			}
		}
	}()
	return func() {
		signal.Stop(sigc)
		close(done)
		wg.Wait()
	}
}
