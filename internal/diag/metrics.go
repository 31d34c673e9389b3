package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 进程内指标，注册到独立的 Registry：
// - llmsrc_op_total{comp,stage,result}
// - llmsrc_error_total{comp,code}
// - llmsrc_op_duration_ms{comp,stage}
// - llmsrc_blocks{file_id,state}  state=done|total
var (
	Registry = prometheus.NewRegistry()

	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llmsrc_op_total",
		Help: "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llmsrc_error_total",
		Help: "Errors by component and classification code.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llmsrc_op_duration_ms",
		Help:    "Stage duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 14),
	}, []string{"comp", "stage"})

	blocks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "llmsrc_blocks",
		Help: "Blocks processed and planned per source file.",
	}, []string{"file_id", "state"})
)

func init() {
	Registry.MustRegister(opTotal, errorTotal, opDuration, blocks)
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// SetBlocks 记录文件的块进度。
func SetBlocks(fileID string, done, total int) {
	blocks.WithLabelValues(fileID, "done").Set(float64(done))
	blocks.WithLabelValues(fileID, "total").Set(float64(total))
}

// WriteTextfile 以 node_exporter textfile 格式导出当前指标。
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
