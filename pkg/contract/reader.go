package contract

import (
	"context"
	"io"
)

// Reader: 单一输入源抽象（文件或 STDIN "-"）。
// 约束：
// 1) FileID 稳定且去平台差异化；
// 2) 不做解码/业务解析，仅提供字节流；
// 3) 调用方负责 Close。
type Reader interface {
	Open(ctx context.Context, src string) (FileID, io.ReadCloser, error)
}
