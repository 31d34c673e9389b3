package contract

import (
	"context"
	"io"
)

// Splitter: 将单文件字节流拆分为有序 Record（每行一条），并分配 Index（0..n-1）。
// 约束：
// 1) Index 严格递增且稳定；
// 2) 不改变文本（行终止符原样保留）；
// 3) 无内部并发、幂等。
type Splitter interface {
	Split(ctx context.Context, fileID FileID, r io.Reader) ([]Record, error)
}

// SegmentLimit: 分块参数。
type SegmentLimit struct {
	// BlockSize: 每块的源行数，必须为正数。
	BlockSize int
}

// Segmenter: 将有序行切分为固定大小的块，并把每块末尾的不完整行延后到下一块。
// 约束：
//  1. 不重排；
//  2. 仅在同一 FileID 内成块；
//  3. Block.Index 自 0 连续递增。
type Segmenter interface {
	Segment(ctx context.Context, records []Record, limit SegmentLimit) (Segmentation, error)
}
