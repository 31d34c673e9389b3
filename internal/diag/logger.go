package diag

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化日志器：单行 JSON，经 zap 写入轮转文件（或给定 io.Writer）。
// 字段约定：corr_id/comp/stage/code/dur_ms/count/file_id/block_id/kv。
type Logger struct {
	z    *zap.Logger
	sink io.Closer
}

// NewLogger 通过配置的 level 初始化，并将日志写入 dir（默认 logs），10m 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(nil, dir, 10*1024*1024)
	l := NewLoggerTo(corrID, level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写入 w（测试与 stderr 输出）。
func NewLoggerTo(corrID, level string, w io.Writer) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "ts",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(parseLevel(level)))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// Nop 返回丢弃一切输出的日志器。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Event 为标准事件结构（空字段不输出）。
type Event struct {
	Comp   string
	Stage  string // start|finish|error|warn
	Code   string
	DurMS  int64
	Count  int64
	FileID string
	Block  string
	Msg    string
	KV     map[string]string
}

func (ev Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fs = append(fs, zap.String("code", ev.Code))
	}
	if ev.DurMS != 0 {
		fs = append(fs, zap.Int64("dur_ms", ev.DurMS))
	}
	if ev.Count != 0 {
		fs = append(fs, zap.Int64("count", ev.Count))
	}
	if ev.FileID != "" {
		fs = append(fs, zap.String("file_id", ev.FileID))
	}
	if ev.Block != "" {
		fs = append(fs, zap.String("block_id", ev.Block))
	}
	if len(ev.KV) > 0 {
		fs = append(fs, zap.Any("kv", ev.KV))
	}
	return fs
}

func (l *Logger) log(lv zapcore.Level, ev Event) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(lv, ev.Msg); ce != nil {
		ce.Write(ev.fields()...)
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id/block_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID, block string) *Timer {
	return l.StartWithKV(comp, msg, fileID, block, nil)
}

// StartWithKV 记录带 file_id/block_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, block string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Block: block, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, block: block, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 file_id/block_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID, block string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, block, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, block string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zapcore.ErrorLevel, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, Block: block, KV: kv})
}

// Warn 记录非致命异常（例如尾部残留行、修复告警汇总）。
func (l *Logger) Warn(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.WarnLevel, Event{Comp: comp, Stage: "warn", FileID: fileID, Msg: msg, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID, block string, kv map[string]string) {
	l.log(zapcore.DebugLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Block: block, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	block  string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, FileID: t.fileID, Block: t.block, Msg: msg})
}

// Elapsed 返回自 start 起的耗时。
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}
