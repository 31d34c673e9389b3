package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"llmsrc/plugins/assembler/repair"
)

// BenchmarkRender 衡量每步重建的开销（随已处理块数线性增长）。
func BenchmarkRender(b *testing.B) {
	asm, err := repair.New(nil)
	if err != nil {
		b.Fatalf("assembler: %v", err)
	}
	for _, blocks := range []int{10, 100} {
		b.Run(fmt.Sprintf("blocks=%d", blocks), func(b *testing.B) {
			results := make([]string, blocks)
			for i := range results {
				var sb strings.Builder
				for j := 0; j < 50; j++ {
					fmt.Fprintf(&sb, "        x%d_%d = getString(R.string.k%d) + \"v\";\n", i, j, j)
				}
				results[i] = sb.String()
			}
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := asm.Assemble(ctx, results); err != nil {
					b.Fatalf("assemble: %v", err)
				}
			}
		})
	}
}
