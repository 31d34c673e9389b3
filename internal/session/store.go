package session

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"llmsrc/pkg/contract"
)

// Store 以 YAML 文件持久化会话；控制请求写入同目录的 <session>.ctl。
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore: fs 为 nil 时使用操作系统文件系统。
func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, path: path}
}

// Path 返回会话文件路径。
func (st *Store) Path() string { return st.path }

func (st *Store) ctlPath() string { return st.path + ".ctl" }

// Load 读取并校验会话；文件不存在时返回 fs.ErrNotExist。
func (st *Store) Load() (*Session, error) {
	b, err := afero.ReadFile(st.fs, st.path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrStateInvalid, st.path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", st.path, err)
	}
	return &s, nil
}

// Exists 判断会话文件是否存在。
func (st *Store) Exists() bool {
	ok, _ := afero.Exists(st.fs, st.path)
	return ok
}

// quoted 逐条写成双引号标量。yaml.v3 的字面块在首行缩进大于后续行时
// 会写出读不回的缩进指示（如 "- |4"），块中的 Java 片段经常如此。
type quoted []string

func (q quoted) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range q {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: v})
	}
	return n, nil
}

// record 为 Session 的落盘形式，键与 Session 的标签一致。
type record struct {
	ID          string                `yaml:"id"`
	Source      string                `yaml:"source"`
	Digest      string                `yaml:"digest"`
	BlockSize   int                   `yaml:"block_size"`
	State       RunState              `yaml:"state"`
	Cursor      int                   `yaml:"cursor"`
	Results     quoted                `yaml:"results"`
	Raw         quoted                `yaml:"raw,omitempty"`
	Warnings    []contract.Warning    `yaml:"warnings,omitempty"`
	Corrections []contract.Correction `yaml:"corrections,omitempty"`
	LastError   string                `yaml:"last_error,omitempty"`
	Log         quoted                `yaml:"log,omitempty"`
	UpdatedAt   time.Time             `yaml:"updated_at"`
}

// MarshalYAML 以 record 形式编码；解码仍直接读入 Session。
func (s Session) MarshalYAML() (any, error) {
	return record{
		ID:          s.ID,
		Source:      s.Source,
		Digest:      s.Digest,
		BlockSize:   s.BlockSize,
		State:       s.State,
		Cursor:      s.Cursor,
		Results:     s.Results,
		Raw:         s.Raw,
		Warnings:    s.Warnings,
		Corrections: s.Corrections,
		LastError:   s.LastError,
		Log:         s.Log,
		UpdatedAt:   s.UpdatedAt,
	}, nil
}

// Save 原子写入（同目录临时文件 + 重命名）。
func (st *Store) Save(s *Session) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("session encode: %w", err)
	}
	return writeAtomic(st.fs, st.path, b)
}

// Request 写入控制请求，由运行中的进程在块之间消费。
func (st *Store) Request(c Command) error {
	return writeAtomic(st.fs, st.ctlPath(), []byte(string(c)+"\n"))
}

// TakeRequest 读取并删除挂起的控制请求；无请求时 ok=false。
func (st *Store) TakeRequest() (c Command, ok bool, err error) {
	b, err := afero.ReadFile(st.fs, st.ctlPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := st.fs.Remove(st.ctlPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", false, err
	}
	c, err = ParseCommand(strings.TrimSpace(string(b)))
	if err != nil {
		return "", false, err
	}
	return c, true, nil
}

func writeAtomic(afs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := afs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(afs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	name := tmp.Name()
	defer func() { _ = afs.Remove(name) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := afs.Rename(name, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
