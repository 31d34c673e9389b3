package contract

// UpstreamError 承载上游（模型服务）错误的最小诊断信息。
// 便于 pipeline 记录结构化日志字段与会话日志。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
