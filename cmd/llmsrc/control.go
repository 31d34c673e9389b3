package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"llmsrc/internal/session"
)

// newControlCmd: pause/stop/reset 写入控制请求（供进行中的 run 在块之间消费），
// 并直接作用于已持久化的会话，使其在没有 run 时同样生效。
func newControlCmd(a *app, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := session.ParseCommand(name)
			if err != nil {
				return configErr(err)
			}
			path, err := a.resolveSession()
			if err != nil {
				return err
			}
			store := session.NewStore(a.fs, path)
			s, err := store.Load()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return runtimeErr(fmt.Errorf("会话不存在: %s", path))
				}
				return runtimeErr(err)
			}
			if err := store.Request(c); err != nil {
				return runtimeErr(err)
			}
			// 暂停只对运行中的会话有意义
			if c != session.CmdPause || s.State == session.Running {
				if err := s.Apply(c); err != nil {
					return runtimeErr(err)
				}
				if err := store.Save(s); err != nil {
					return runtimeErr(err)
				}
			}
			fprintf(a.stdout, "%s: %s | 块 %d/%d\n", c, s.State, s.Cursor, s.Len())
			return nil
		},
	}
}

type statusOutput struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	State       string   `json:"state"`
	Cursor      int      `json:"cursor"`
	Blocks      int      `json:"blocks"`
	Progress    float64  `json:"progress"`
	Warnings    int      `json:"warnings"`
	Corrections int      `json:"corrections"`
	LastError   string   `json:"last_error,omitempty"`
	UpdatedAt   string   `json:"updated_at"`
	Log         []string `json:"log,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "显示会话进度、状态、最近错误与日志",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession()
			if err != nil {
				return err
			}
			out := statusOutput{
				ID:          s.ID,
				Source:      s.Source,
				State:       string(s.State),
				Cursor:      s.Cursor,
				Blocks:      s.Len(),
				Progress:    s.Progress(),
				Warnings:    len(s.Warnings),
				Corrections: len(s.Corrections),
				LastError:   s.LastError,
				UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
				Log:         s.Log,
			}
			if jsonOutput {
				b, err := json.Marshal(out)
				if err != nil {
					return runtimeErr(fmt.Errorf("marshal json: %w", err))
				}
				fprintf(a.stdout, "%s\n", b)
				return nil
			}
			fprintf(a.stdout, "会话   : %s\n", out.ID)
			fprintf(a.stdout, "源文件 : %s\n", out.Source)
			fprintf(a.stdout, "状态   : %s\n", out.State)
			fprintf(a.stdout, "进度   : 块 %d/%d (%.0f%%)\n", out.Cursor, out.Blocks, out.Progress*100)
			fprintf(a.stdout, "诊断   : 告警 %d | 修正建议 %d\n", out.Warnings, out.Corrections)
			if out.LastError != "" {
				fprintf(a.stdout, "最近错误: %s\n", out.LastError)
			}
			fprintf(a.stdout, "更新于 : %s\n", out.UpdatedAt)
			if len(out.Log) > 0 {
				fprintf(a.stdout, "日志:\n")
				for _, ln := range out.Log {
					fprintf(a.stdout, "  %s\n", ln)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
	return cmd
}

func newBlocksCmd(a *app) *cobra.Command {
	var (
		raw   bool
		index int
	)
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "逐块打印已保存的结果（--raw 打印模型原始响应）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadSession()
			if err != nil {
				return err
			}
			if index >= s.Len() {
				return configErr(fmt.Errorf("块序号越界: %d（共 %d 块）", index, s.Len()))
			}
			for i := 0; i < s.Len(); i++ {
				if index >= 0 && i != index {
					continue
				}
				state := "pending"
				if i < s.Cursor {
					state = "done"
				}
				text := s.Results[i]
				if raw && i < len(s.Raw) {
					text = s.Raw[i]
				}
				fprintf(a.stdout, "=== block %d/%d [%s] ===\n", i+1, s.Len(), state)
				if text != "" {
					fprintf(a.stdout, "%s", text)
					if !strings.HasSuffix(text, "\n") {
						fprintf(a.stdout, "\n")
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "打印模型原始响应（清洗前）")
	cmd.Flags().IntVar(&index, "index", -1, "仅打印指定块（从 0 起）；-1 表示全部")
	return cmd
}

func (a *app) loadSession() (*session.Session, error) {
	path, err := a.resolveSession()
	if err != nil {
		return nil, err
	}
	s, err := session.NewStore(a.fs, path).Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, runtimeErr(fmt.Errorf("会话不存在: %s", path))
		}
		return nil, runtimeErr(err)
	}
	return s, nil
}
