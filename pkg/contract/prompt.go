package contract

import "context"

// Prompt: 不透明载荷，由具体 PromptBuilder/LLMClient 配对解释。
type Prompt any

// Message: 最小会话消息形状（可用于 ChatPrompt）。
type Message struct {
	Role    string
	Content string
}

// TextPrompt: 文本型提示词载荷。
type TextPrompt string

// ChatPrompt: 会话型提示词载荷（最小集合）。
type ChatPrompt []Message

// 提示词中映射摘录的行格式：`<key> => <text>`。
// 离线客户端依赖该格式回放映射。
const (
	MappingSectionHeader = "### Mapping"
	BlockSectionHeader   = "### Code"
	MappingLineSep       = " => "
)

// PromptBuilder: 基于 Block 与资源映射构造确定性的 Prompt。
// 约束：
//   - 纯计算，不做 I/O；
//   - 不隐式修改源码内容；
//   - 失败快速返回错误。
type PromptBuilder interface {
	Build(ctx context.Context, b Block, m Mapping) (Prompt, error)
	// EstimateOverheadTokens: 估算与块无关的固定提示词开销（不含源码与映射摘录）。
	EstimateOverheadTokens(estimate TokenEstimator) int
}

// TokenEstimator: 文本→token 的近似估算函数。
// 典型实现：ceil(len(utf8_bytes)/BytesPerToken)。
type TokenEstimator func(s string) int
