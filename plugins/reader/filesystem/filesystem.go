package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"llmsrc/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// AllowExts: 允许的扩展名（不区分大小写，含点号）。为空表示不限制。
	AllowExts []string `json:"allow_exts"`
	// MaxBytes: 单文件大小上限；<=0 表示不限制。
	MaxBytes int64 `json:"max_bytes"`
}

// FileSystem 基于 afero.Fs 与 STDIN 的 Reader。
type FileSystem struct {
	fs       afero.Fs
	stdin    io.Reader
	bufSize  int
	exts     map[string]struct{}
	maxBytes int64
}

// New 创建 FileSystem Reader；fs 为 nil 时使用操作系统文件系统。
func New(opts *Options, fs afero.Fs) *FileSystem {
	const defaultBuf = 64 * 1024
	if fs == nil {
		fs = afero.NewOsFs()
	}
	r := &FileSystem{fs: fs, stdin: os.Stdin, bufSize: defaultBuf}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	if len(opts.AllowExts) > 0 {
		r.exts = make(map[string]struct{}, len(opts.AllowExts))
		for _, e := range opts.AllowExts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			r.exts[e] = struct{}{}
		}
	}
	r.maxBytes = opts.MaxBytes
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Open 打开单一源文件；src 为 "-" 时读取 STDIN。
// 仅接受常规文件（符号链接跟随到常规文件）。
func (r *FileSystem) Open(ctx context.Context, src string) (contract.FileID, io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	default:
	}
	if src == "-" {
		return contract.FileID("stdin"), newBufferedCloser(io.NopCloser(r.stdin), r.bufSize), nil
	}
	if strings.TrimSpace(src) == "" {
		return "", nil, fmt.Errorf("%w: empty source path", contract.ErrInvalidInput)
	}
	if len(r.exts) > 0 {
		if _, ok := r.exts[strings.ToLower(filepath.Ext(src))]; !ok {
			return "", nil, fmt.Errorf("%w: extension %q not allowed", contract.ErrInvalidInput, filepath.Ext(src))
		}
	}
	info, err := r.fs.Stat(src)
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: %s is not a regular file", contract.ErrInvalidInput, src)
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return "", nil, fmt.Errorf("%w: %s is %d bytes (max %d)", contract.ErrBudgetExceeded, src, info.Size(), r.maxBytes)
	}
	f, err := r.fs.Open(src)
	if err != nil {
		return "", nil, err
	}
	return contract.NormalizeFileID(src), newBufferedCloser(f, r.bufSize), nil
}

// ReadAll 打开并完整读取一个文件（映射文件等小文件）。
func (r *FileSystem) ReadAll(ctx context.Context, src string) (contract.FileID, []byte, error) {
	id, rc, err := r.Open(ctx, src)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	return id, b, err
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
