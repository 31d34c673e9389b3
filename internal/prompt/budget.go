package prompt

import "llmsrc/pkg/contract"

// MakeEstimator 返回一个近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// 当 bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		if s == "" {
			return 0
		}
		return (len(s) + bpt - 1) / bpt
	}
}

// EffectiveMaxTokens 计算预扣固定提示开销后的有效预算。
// 返回 (effectiveMax, overheadTokens)。若 maxTokens<=0，返回 (0,0)。
func EffectiveMaxTokens(pb contract.PromptBuilder, bytesPerToken int, maxTokens int) (int, int) {
	if maxTokens <= 0 {
		return 0, 0
	}
	overhead := pb.EstimateOverheadTokens(MakeEstimator(bytesPerToken))
	return maxTokens - overhead, overhead
}

// PromptTokens 估算已构造 Prompt 的输入 token 数；未知载荷返回 0。
func PromptTokens(est contract.TokenEstimator, p contract.Prompt) int {
	if est == nil {
		return 0
	}
	switch v := p.(type) {
	case contract.TextPrompt:
		return est(string(v))
	case contract.ChatPrompt:
		n := 0
		for _, m := range v {
			n += est(m.Content)
		}
		return n
	default:
		return 0
	}
}

// RequestTokens 为一次调用的总预算：输入估算 + 预期输出上限。
func RequestTokens(est contract.TokenEstimator, p contract.Prompt, maxOutput int) int {
	return PromptTokens(est, p) + max(maxOutput, 0)
}
