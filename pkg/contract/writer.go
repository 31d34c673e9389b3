package contract

import (
	"context"
	"io"
)

// ArtifactID: 导出工件名（重建后的源文件或其告警旁路文件），与 FileID 同表示。
type ArtifactID = FileID

// Writer 持久化导出结果。
// 约束：
//  1. 同一 ArtifactID 单写者，写入完成前不可见半成品；
//  2. 按字节透传 r 的内容；
//  3. ctx 取消时尽快返回，错误直接上抛。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
