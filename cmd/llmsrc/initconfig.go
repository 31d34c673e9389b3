package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "llmsrc/internal/config"
)

func newInitConfigCmd(a *app) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在指定目录生成默认配置与 .env 模板（已存在则跳过，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := a.fs.MkdirAll(dir, 0o755); err != nil {
				return configErr(fmt.Errorf("生成默认配置失败: %w", err))
			}
			name := "config.json"
			if asYAML {
				name = "config.yaml"
			}
			cfgPath := filepath.Join(dir, name)
			b, err := encodeConfig(cfgpkg.DefaultTemplateConfig(), cfgPath)
			if err != nil {
				return configErr(fmt.Errorf("生成默认配置失败: %w", err))
			}
			if err := a.reportWrite(cfgPath, b); err != nil {
				return configErr(fmt.Errorf("生成默认配置失败: %w", err))
			}
			if err := a.reportWrite(filepath.Join(dir, ".env"), []byte(cfgpkg.DotEnvTemplate())); err != nil {
				fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "以 YAML 生成 config.yaml")
	return cmd
}

func (a *app) reportWrite(path string, data []byte) error {
	wrote, err := writeNew(a.fs, path, data)
	if err != nil {
		return err
	}
	if wrote {
		fprintf(a.stdout, "已生成 %s\n", path)
	} else {
		fprintf(a.stdout, "已存在，跳过 %s\n", path)
	}
	return nil
}
