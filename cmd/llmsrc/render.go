package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "llmsrc/internal/config"
	"llmsrc/internal/diag"
	"llmsrc/internal/pipeline"
	"llmsrc/pkg/contract"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		outDir string
		stdout bool
		name   string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "从会话重建文档（可在任意时刻执行，未处理的块为空）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(overrides{})
			if err != nil {
				return err
			}
			if outDir != "" {
				if cfg.Options.Writer, err = withOutputDir(cfg.Options.Writer, outDir); err != nil {
					return configErr(err)
				}
			}
			comp, err := cfgpkg.Offline(cfg, a.fs)
			if err != nil {
				return configErr(fmt.Errorf("装配失败: %w", err))
			}
			s, err := a.loadSession()
			if err != nil {
				return err
			}
			logger := diag.NewLogger(uuid.NewString(), cfg.Logging.Level, cfg.Logging.Dir)
			defer logger.Close()
			r := &pipeline.Runner{
				Comp:   comp,
				Plan:   &pipeline.Plan{FileID: contract.FileID(s.Source)},
				Logger: logger,
			}
			ctx := cmd.Context()
			if stdout {
				rep, err := r.Render(ctx, s)
				if err != nil {
					return runtimeErr(err)
				}
				fprintf(a.stdout, "%s", rep.Document)
				for _, w := range rep.Warnings {
					fprintf(a.stderr, "warning %s\n", w)
				}
				for _, c := range rep.Corrections {
					fprintf(a.stderr, "correction %d: %s\n", c.Line, c.Text)
				}
				return nil
			}
			id := exportName(s.Source)
			if name != "" {
				id = contract.ArtifactID(name)
			}
			rep, err := r.Export(ctx, s, id)
			if err != nil {
				return runtimeErr(err)
			}
			fprintf(a.stdout, "已写出 %s 与 %s.warnings.jsonl | 块 %d/%d | 告警 %d | 修正建议 %d\n",
				id, id, s.Cursor, s.Len(), len(rep.Warnings), len(rep.Corrections))
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "输出目录（覆盖 writer.output_dir）")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "将文档打印到 stdout，诊断打印到 stderr，不写文件")
	cmd.Flags().StringVar(&name, "name", "", "输出文件名；缺省取源文件名")
	return cmd
}
