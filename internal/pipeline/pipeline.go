package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"llmsrc/internal/diag"
	"llmsrc/internal/prompt"
	"llmsrc/internal/rate"
	"llmsrc/internal/session"
	"llmsrc/pkg/contract"
)

// - 单调用：任意时刻至多一个模型调用在途；Cursor 仅在结果写入后推进。
// - 控制请求（暂停/停止/重置）只在块之间生效，在途调用总会先完成或失败。
// - 失败即暂停：模型/清洗失败记录到会话并转入 paused，已存结果不受影响。
// - 重建是会话快照的纯函数，每次渲染从头计算。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader        contract.Reader
	Splitter      contract.Splitter
	Segmenter     contract.Segmenter
	MappingLoader contract.MappingLoader // 可选；为空时使用空映射
	PromptBuilder contract.PromptBuilder
	LLM           contract.LLMClient
	Sanitizer     contract.Sanitizer
	Assembler     contract.Assembler
	Writer        contract.Writer // 仅 Export 使用
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Source    string
	Mapping   string // 资源映射文件；为空表示不加载
	BlockSize int
	// 预算：单次请求输入 token 上限与估算参数；MaxTokens<=0 关闭预算
	MaxTokens     int
	BytesPerToken int
	// MaxOutputTokens: 预期输出上限，仅用于限流申请
	MaxOutputTokens int
	// 限流闸门（可选）
	Gate    *rate.Gate
	GateKey rate.LimitKey
	// MaxSteps: 单次 Run 最多推进的块数；<=0 不限制
	MaxSteps int
	// PreviewBytes: 日志中响应预览长度；<=0 使用 600
	PreviewBytes int
}

// Plan 为一次运行的只读输入：分块、映射与源摘要。
type Plan struct {
	FileID   contract.FileID
	Blocks   []contract.Block
	Mapping  contract.Mapping
	Residual string
	Digest   string
}

// ErrNotRunning: 会话不处于 running 时请求推进。
var ErrNotRunning = errors.New("run state is not running")

func sanity(comp Components, set Settings) error {
	if comp.Reader == nil || comp.Splitter == nil || comp.Segmenter == nil ||
		comp.PromptBuilder == nil || comp.LLM == nil || comp.Sanitizer == nil || comp.Assembler == nil {
		return fmt.Errorf("%w: missing component", contract.ErrInvalidInput)
	}
	if set.Source == "" {
		return fmt.Errorf("%w: empty source", contract.ErrInvalidInput)
	}
	if set.BlockSize < 1 {
		return fmt.Errorf("%w: block size %d", contract.ErrInvalidInput, set.BlockSize)
	}
	return nil
}

// Prepare: Reader → Splitter → Segmenter，并加载资源映射。
func Prepare(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (*Plan, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	fileID, rc, err := comp.Reader.Open(ctx, set.Source)
	if err != nil {
		return nil, stageErr(logger, "reader", "", "", err)
	}
	tm := logger.StartWith("splitter", "split", string(fileID), "")
	recs, err := comp.Splitter.Split(ctx, fileID, rc)
	_ = rc.Close()
	if err != nil {
		return nil, stageErr(logger, "splitter", string(fileID), "", err)
	}
	tm.Finish("split", int64(len(recs)))
	diag.IncOp("splitter", "finish", "success")

	tm = logger.StartWith("segmenter", "segment", string(fileID), "")
	seg, err := comp.Segmenter.Segment(ctx, recs, contract.SegmentLimit{BlockSize: set.BlockSize})
	if err != nil {
		return nil, stageErr(logger, "segmenter", string(fileID), "", err)
	}
	tm.Finish("segment", int64(len(seg.Blocks)))
	diag.IncOp("segmenter", "finish", "success")
	if seg.Residual != "" {
		logger.Warn("segmenter", "trailing carry dropped", string(fileID), map[string]string{"line": seg.Residual})
	}

	m := contract.NewMapping(nil)
	if set.Mapping != "" && comp.MappingLoader != nil {
		_, mrc, err := comp.Reader.Open(ctx, set.Mapping)
		if err != nil {
			return nil, stageErr(logger, "mapping", string(fileID), "", err)
		}
		tm = logger.StartWith("mapping", "load", set.Mapping, "")
		m, err = comp.MappingLoader.Load(ctx, mrc)
		_ = mrc.Close()
		if err != nil {
			return nil, stageErr(logger, "mapping", set.Mapping, "", err)
		}
		tm.Finish("load", int64(m.Len()))
		diag.IncOp("mapping", "finish", "success")
	}
	return &Plan{
		FileID:   fileID,
		Blocks:   seg.Blocks,
		Mapping:  m,
		Residual: seg.Residual,
		Digest:   digest(recs, set.BlockSize),
	}, nil
}

// digest 标识源内容与分块参数；会话只在摘要一致时恢复。
func digest(recs []contract.Record, blockSize int) string {
	h := sha256.New()
	for _, r := range recs {
		_, _ = io.WriteString(h, r.Text)
	}
	_, _ = io.WriteString(h, "\x00"+strconv.Itoa(blockSize))
	return hex.EncodeToString(h.Sum(nil))
}

// NewSession 基于 Plan 创建空会话。
func (p *Plan) NewSession(source string, blockSize int) *session.Session {
	return session.New(source, p.Digest, blockSize, len(p.Blocks))
}

func stageErr(logger *diag.Logger, comp, fileID, block string, err error) error {
	code := diag.Classify(err)
	kv := map[string]string{}
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		kv["status"] = strconv.Itoa(ue.UpstreamStatus())
		if msg := ue.UpstreamMessage(); msg != "" {
			kv["upstream"] = preview(msg, 256)
		}
	}
	logger.ErrorWithKV(comp, string(code), err.Error(), nil, fileID, block, kv)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
	return fmt.Errorf("%s: %w", comp, err)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Runner 驱动会话逐块推进。Store 为空时不持久化。
type Runner struct {
	Comp   Components
	Set    Settings
	Plan   *Plan
	Store  *session.Store
	Logger *diag.Logger
	Term   *diag.Terminal
	// Control: 进程内控制请求（例如信号触发的暂停），与 Store 中的请求一样在块之间消费
	Control <-chan session.Command
}

func (r *Runner) save(s *session.Session) error {
	if r.Store == nil {
		return nil
	}
	if err := r.Store.Save(s); err != nil {
		return stageErr(r.Logger, "session", string(r.Plan.FileID), "", err)
	}
	return nil
}

// Step 处理 Cursor 所指的块：构造请求 → (限流) → 调用 → 清洗 → 写入并推进。
// 失败时会话转入 paused，Cursor 不变，返回错误。
func (r *Runner) Step(ctx context.Context, s *session.Session) error {
	if s.State != session.Running {
		return fmt.Errorf("%w: %s", ErrNotRunning, s.State)
	}
	if !s.Matches(r.Plan.Digest, len(r.Plan.Blocks)) {
		return fmt.Errorf("%w: session does not match source", contract.ErrStateInvalid)
	}
	if s.Done() {
		s.Stop()
		return r.save(s)
	}
	i, n := s.Cursor, len(r.Plan.Blocks)
	b := r.Plan.Blocks[i]
	fid, bid := string(r.Plan.FileID), strconv.Itoa(i)

	// 空块或仅含空白的块无需改写：原文即结果
	if text := b.Text(); strings.TrimSpace(text) == "" {
		s.Logf("block %d/%d: blank, skipped", i+1, n)
		if err := s.Advance(i, "", text); err != nil {
			return err
		}
		return r.finishStep(ctx, s)
	}

	s.Logf("block %d/%d: invoke", i+1, n)
	p, err := r.Comp.PromptBuilder.Build(ctx, b, r.Plan.Mapping)
	if err != nil {
		return r.fail(s, i, stageErr(r.Logger, "prompt_builder", fid, bid, err))
	}
	est := prompt.MakeEstimator(r.Set.BytesPerToken)
	if r.Set.MaxTokens > 0 {
		if toks := prompt.PromptTokens(est, p); toks > r.Set.MaxTokens {
			err := fmt.Errorf("%w: prompt ~%d tokens > max_tokens %d", contract.ErrBudgetExceeded, toks, r.Set.MaxTokens)
			return r.fail(s, i, stageErr(r.Logger, "prompt_builder", fid, bid, err))
		}
	}
	if r.Set.Gate != nil {
		ask := rate.Ask{Key: r.Set.GateKey, Requests: 1, Tokens: prompt.RequestTokens(est, p, r.Set.MaxOutputTokens)}
		if err := r.Set.Gate.Wait(ctx, ask); err != nil {
			return r.fail(s, i, stageErr(r.Logger, "rate", fid, bid, err))
		}
	}

	tm := r.Logger.StartWithKV("llm", "invoke", fid, bid, map[string]string{
		"from":  strconv.FormatInt(int64(b.From), 10),
		"to":    strconv.FormatInt(int64(b.To), 10),
		"lines": strconv.Itoa(b.LineCount()),
	})
	raw, err := r.Comp.LLM.Invoke(ctx, b, p)
	if err != nil {
		return r.fail(s, i, stageErr(r.Logger, "llm", fid, bid, err))
	}
	tm.Finish("invoke", int64(len(raw.Text)))
	diag.IncOp("llm", "finish", "success")
	diag.ObserveDuration("llm", "invoke", tm.Elapsed().Milliseconds())

	pv := r.Set.PreviewBytes
	if pv <= 0 {
		pv = 600
	}
	s.Logf("block %d/%d: response %s", i+1, n, preview(raw.Text, pv))

	text, err := r.Comp.Sanitizer.Sanitize(ctx, raw)
	if err != nil {
		return r.fail(s, i, stageErr(r.Logger, "sanitizer", fid, bid, err))
	}
	if err := s.Advance(i, raw.Text, text); err != nil {
		return err
	}
	s.Logf("block %d/%d done", i+1, n)
	return r.finishStep(ctx, s)
}

// finishStep: 每步之后重建一次，刷新会话中的诊断，并持久化。
func (r *Runner) finishStep(ctx context.Context, s *session.Session) error {
	diag.SetBlocks(string(r.Plan.FileID), s.Cursor, s.Len())
	if _, err := r.Refresh(ctx, s); err != nil {
		return err
	}
	return r.save(s)
}

func (r *Runner) fail(s *session.Session, i int, err error) error {
	s.Fail(i, err)
	if serr := r.save(s); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

// Render 从会话快照重建文档；不修改会话。
func (r *Runner) Render(ctx context.Context, s *session.Session) (contract.Report, error) {
	t0 := time.Now()
	rep, err := r.Comp.Assembler.Assemble(ctx, s.Snapshot())
	if err != nil {
		return contract.Report{}, stageErr(r.Logger, "assembler", string(r.Plan.FileID), "", err)
	}
	diag.IncOp("assembler", "finish", "success")
	diag.ObserveDuration("assembler", "assemble", time.Since(t0).Milliseconds())
	return rep, nil
}

// Refresh 重建并把诊断记录到会话。
func (r *Runner) Refresh(ctx context.Context, s *session.Session) (contract.Report, error) {
	rep, err := r.Render(ctx, s)
	if err != nil {
		return rep, err
	}
	s.Warnings = rep.Warnings
	s.Corrections = rep.Corrections
	return rep, nil
}

func (r *Runner) takeControl() (session.Command, bool, error) {
	select {
	case c, ok := <-r.Control:
		if ok {
			return c, true, nil
		}
	default:
	}
	if r.Store == nil {
		return "", false, nil
	}
	return r.Store.TakeRequest()
}

// lateControl 消费推进结束时仍挂起的请求，例如最后一块在途时到达的 reset。
// 会话此时已不在运行，暂停请求不再作用。
func (r *Runner) lateControl(s *session.Session) error {
	for {
		c, ok, err := r.takeControl()
		if err != nil {
			r.Logger.Warn("session", "invalid control request", string(r.Plan.FileID), map[string]string{"err": err.Error()})
			return nil
		}
		if !ok {
			return nil
		}
		if c == session.CmdPause {
			continue
		}
		if err := s.Apply(c); err != nil {
			return err
		}
		r.Logger.Warn("pipeline", "control: "+string(c), string(r.Plan.FileID), nil)
		if err := r.save(s); err != nil {
			return err
		}
	}
}

// Run 启动/恢复会话并逐块推进，直到完成、失败、达到步数上限或收到控制请求。
// 失败时会话已暂停并持久化，返回该错误。
func (r *Runner) Run(ctx context.Context, s *session.Session) error {
	// 运行前残留的控制请求不应中止本次启动
	if r.Store != nil {
		if _, _, err := r.Store.TakeRequest(); err != nil {
			r.Logger.Warn("session", "stale control request ignored", string(r.Plan.FileID), map[string]string{"err": err.Error()})
		}
	}
	n := len(r.Plan.Blocks)
	r.Term.FileStart(string(r.Plan.FileID), n, s.Cursor)
	t0 := time.Now()
	if !s.Start() {
		if _, err := r.Refresh(ctx, s); err != nil {
			return err
		}
		r.Term.FileFinish(true, len(s.Warnings), time.Since(t0))
		return r.save(s)
	}
	s.Logf("run: start at block %d/%d", s.Cursor+1, n)
	if err := r.save(s); err != nil {
		return err
	}
	tm := r.Logger.StartWith("pipeline", "run", string(r.Plan.FileID), "")
	steps := 0
	for s.State == session.Running {
		c, ok, err := r.takeControl()
		if err != nil {
			r.Logger.Warn("session", "invalid control request", string(r.Plan.FileID), map[string]string{"err": err.Error()})
		}
		if ok {
			if err := s.Apply(c); err != nil {
				return err
			}
			r.Logger.Warn("pipeline", "control: "+string(c), string(r.Plan.FileID), nil)
			if c == session.CmdPause {
				r.Term.Paused(s.Cursor, "pause requested")
			}
			if err := r.save(s); err != nil {
				return err
			}
			break
		}
		if r.Set.MaxSteps > 0 && steps >= r.Set.MaxSteps {
			s.Pause()
			s.Logf("run: step limit %d reached", r.Set.MaxSteps)
			r.Term.Paused(s.Cursor, "step limit")
			if err := r.save(s); err != nil {
				return err
			}
			break
		}
		if err := ctx.Err(); err != nil {
			s.Pause()
			_ = r.save(s)
			return err
		}
		if err := r.Step(ctx, s); err != nil {
			r.Term.Paused(s.Cursor, err.Error())
			r.Term.FileFinish(false, len(s.Warnings), time.Since(t0))
			if lerr := r.lateControl(s); lerr != nil {
				return errors.Join(err, lerr)
			}
			return err
		}
		steps++
		r.Term.BlockProgress(s.Cursor, n)
	}
	if err := r.lateControl(s); err != nil {
		return err
	}
	tm.Finish(string(s.State), int64(steps))
	if s.Done() {
		r.Term.FileFinish(true, len(s.Warnings), time.Since(t0))
	}
	return nil
}
