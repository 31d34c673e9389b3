package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖并着色；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	llm      string
	runStart time.Time

	curFileID   string // 短名（base + 截断）
	blocksTotal int
	blocksDone  int
	warnings    int

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleFaint = lipgloss.NewStyle().Faint(true)
)

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// RunStart: 记录运行上下文。
func (t *Terminal) RunStart(llm string, blockSize int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.llm = llm
	t.runStart = time.Now()
	t.println(fmt.Sprintf("%s llm=%s | block=%d 行", t.tag("[run]", styleFaint), safe(llm), blockSize))
}

// FileStart: 标记当前文件、计划块数与恢复位置。
func (t *Terminal) FileStart(fileID string, blocksTotal, cursor int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.curFileID = shortenBase(fileID, 48)
	t.blocksTotal = blocksTotal
	t.blocksDone = cursor
	t.warnings = 0
	if !t.isTTY || cursor > 0 {
		t.println(fmt.Sprintf("%s %s | 计划块数=%d | 起点=%d", t.tag("[file]", styleFaint), t.curFileID, blocksTotal, cursor))
	}
}

// BlockProgress: 周期性进度（TTY 下 ≥100ms 节流）。
func (t *Terminal) BlockProgress(done, total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || !t.isTTY {
		return
	}
	t.blocksDone = done
	t.blocksTotal = total
	now := time.Now()
	if done < total && now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[file] %s | 进度 %d/%d | 用时 %s",
		t.curFileID, t.blocksDone, t.blocksTotal, formatSince(t.runStart)))
}

// Paused: 运行在某块处暂停（错误或外部请求）。
func (t *Terminal) Paused(block int, reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.clearInline()
	t.println(fmt.Sprintf("%s %s | 块 %d | %s", t.tag("[pause]", styleWarn), t.curFileID, block, safe(reason)))
}

// FileFinish: 完成当前文件（立即刷新并换行）。
func (t *Terminal) FileFinish(ok bool, warnings int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.warnings = warnings
	t.clearInline()
	tag := t.tag("[done]", styleOK)
	if !ok {
		tag = t.tag("[fail]", styleFail)
	}
	t.println(fmt.Sprintf("%s %s | 块 %d | 告警 %d | 总用时 %s",
		tag, t.curFileID, t.blocksTotal, warnings, formatDur(dur)))
}

func (t *Terminal) tag(s string, st lipgloss.Style) string {
	if !t.isTTY {
		return s
	}
	return st.Render(s)
}

func (t *Terminal) clearInline() {
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
}

func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 新行比旧行短时用空格覆盖尾部
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if base == "" || base == "." {
		return ""
	}
	if visLen(base) <= max {
		return base
	}
	rs := []rune(base)
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return lipgloss.Width(s) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", max(d.Milliseconds(), 0))
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
