// Package session 持有可恢复的运行状态：RunState、Cursor 与逐块结果。
// 编排层是唯一写入者；渲染只读取 Snapshot。
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"llmsrc/pkg/contract"
)

// RunState 决定编排层是否可以对下一块调用模型。
type RunState string

const (
	Stopped RunState = "stopped"
	Running RunState = "running"
	Paused  RunState = "paused"
)

func (s RunState) valid() bool {
	return s == Stopped || s == Running || s == Paused
}

// LogLimit: 会话内保留的控制台日志行数。
const LogLimit = 40

// Session 为一次重写运行的完整状态，可序列化为 YAML 并在中断后恢复。
// 不变量：
//   - 0 <= Cursor <= len(Results)；
//   - 下标 < Cursor 的结果均已写入：模型往返的清洗结果，或空白块的原文（整块被延后时为空串）；
//   - Cursor 只在写入成功后递增（先写后进）。
type Session struct {
	ID          string                `yaml:"id"`
	Source      string                `yaml:"source"`
	Digest      string                `yaml:"digest"`
	BlockSize   int                   `yaml:"block_size"`
	State       RunState              `yaml:"state"`
	Cursor      int                   `yaml:"cursor"`
	Results     []string              `yaml:"results"`
	Raw         []string              `yaml:"raw,omitempty"`
	Warnings    []contract.Warning    `yaml:"warnings,omitempty"`
	Corrections []contract.Correction `yaml:"corrections,omitempty"`
	LastError   string                `yaml:"last_error,omitempty"`
	Log         []string              `yaml:"log,omitempty"`
	UpdatedAt   time.Time             `yaml:"updated_at"`
}

// New 为 n 个块创建处于 stopped 的新会话；结果均为空占位。
func New(source, digest string, blockSize, n int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Source:    source,
		Digest:    digest,
		BlockSize: blockSize,
		State:     Stopped,
		Results:   make([]string, n),
		Raw:       make([]string, n),
		UpdatedAt: time.Now().UTC(),
	}
}

// Len 返回块总数。
func (s *Session) Len() int { return len(s.Results) }

// Done 表示所有块均已处理。
func (s *Session) Done() bool { return s.Cursor >= len(s.Results) }

// Progress 返回 [0,1] 的完成比例；零块视为完成。
func (s *Session) Progress() float64 {
	if len(s.Results) == 0 {
		return 1
	}
	return float64(s.Cursor) / float64(len(s.Results))
}

// Start 进入 running；若已全部处理则直接转为 stopped 并返回 false。
func (s *Session) Start() bool {
	if s.Done() {
		s.State = Stopped
		s.Logf("all blocks processed")
		return false
	}
	s.State = Running
	s.LastError = ""
	s.touch()
	return true
}

// Pause 进入 paused；Cursor 不变。
func (s *Session) Pause() {
	s.State = Paused
	s.touch()
}

// Stop 进入 stopped；Cursor 不变。
func (s *Session) Stop() {
	s.State = Stopped
	s.touch()
}

// Reset 回到初始状态：Cursor 归零，结果/原始响应/诊断/日志全部清空。
func (s *Session) Reset() {
	s.State = Stopped
	s.Cursor = 0
	for i := range s.Results {
		s.Results[i] = ""
	}
	s.Raw = make([]string, len(s.Results))
	s.Warnings = nil
	s.Corrections = nil
	s.LastError = ""
	s.Log = nil
	s.touch()
}

// Advance 写入块 i 的结果并推进 Cursor（先写后进）。
// 仅允许在 running 状态下对 Cursor 所指的块调用。
func (s *Session) Advance(i int, raw, text string) error {
	if s.State != Running {
		return fmt.Errorf("%w: advance in state %s", contract.ErrInvariantViolation, s.State)
	}
	if i != s.Cursor || i >= len(s.Results) {
		return fmt.Errorf("%w: advance block %d with cursor %d/%d", contract.ErrInvariantViolation, i, s.Cursor, len(s.Results))
	}
	s.Results[i] = text
	if len(s.Raw) == len(s.Results) {
		s.Raw[i] = raw
	}
	s.Cursor++
	s.LastError = ""
	if s.Done() {
		s.State = Stopped
		s.Logf("all blocks processed")
	}
	s.touch()
	return nil
}

// Fail 记录块 i 的失败并进入 paused；Cursor 不变，重试将重新发出同一块。
func (s *Session) Fail(i int, err error) {
	s.LastError = err.Error()
	s.State = Paused
	s.Logf("block %d: error %v", i, err)
	s.touch()
}

// Logf 追加一行控制台日志，仅保留最近 LogLimit 行。
func (s *Session) Logf(format string, args ...any) {
	s.Log = append(s.Log, fmt.Sprintf(format, args...))
	if n := len(s.Log); n > LogLimit {
		s.Log = append([]string(nil), s.Log[n-LogLimit:]...)
	}
}

// Snapshot 返回结果副本，供渲染读取。
func (s *Session) Snapshot() []string {
	return append([]string(nil), s.Results...)
}

// Validate 校验持久化状态的不变量。
func (s *Session) Validate() error {
	if !s.State.valid() {
		return fmt.Errorf("%w: unknown state %q", contract.ErrStateInvalid, s.State)
	}
	if s.Cursor < 0 || s.Cursor > len(s.Results) {
		return fmt.Errorf("%w: cursor %d out of [0,%d]", contract.ErrStateInvalid, s.Cursor, len(s.Results))
	}
	if len(s.Raw) != 0 && len(s.Raw) != len(s.Results) {
		return fmt.Errorf("%w: raw responses %d != blocks %d", contract.ErrStateInvalid, len(s.Raw), len(s.Results))
	}
	if s.State == Running && s.Done() {
		return fmt.Errorf("%w: running with all blocks processed", contract.ErrStateInvalid)
	}
	return nil
}

// Matches 判断会话是否对应同一份源与分块参数。
func (s *Session) Matches(digest string, n int) bool {
	return s.Digest == digest && len(s.Results) == n
}

func (s *Session) touch() { s.UpdatedAt = time.Now().UTC() }
