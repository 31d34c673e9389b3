package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// RotatingFile 将日志写入指定目录，并按文件大小轮转。
// - 当前文件固定名：llmsrc-current.log
// - 轮转：当 size+len(p) 超过 maxBytes 时，将当前文件重命名为 llmsrc-<UTC 时间戳>.log，重新创建当前文件。
type RotatingFile struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
	mu       sync.Mutex
	f        afero.File
	curSize  int64
}

const currentName = "llmsrc-current.log"

// NewRotatingFile: fs 为 nil 时使用操作系统文件系统。
func NewRotatingFile(fs afero.Fs, dir string, maxBytes int64) *RotatingFile {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &RotatingFile{fs: fs, dir: dir, maxBytes: maxBytes}
}

// Write 实现 io.Writer；zap 每次写入恰为一行。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	if w.curSize > 0 && w.curSize+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.curSize += int64(n)
	return n, err
}

// Sync 实现 zapcore.WriteSyncer。
func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := w.fs.OpenFile(filepath.Join(w.dir, currentName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	_ = w.f.Close()
	w.f = nil
	// 高精度时间戳，避免同秒冲突覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	cur := filepath.Join(w.dir, currentName)
	rotated := filepath.Join(w.dir, fmt.Sprintf("llmsrc-%s.log", ts))
	if err := w.fs.Rename(cur, rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	return w.ensureOpen()
}

// Close 关闭当前打开的文件句柄
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f != nil {
		err := w.f.Close()
		w.f = nil
		return err
	}
	return nil
}
