package diag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标（私有 registry，按需以文本格式导出）：
// - ifcheck_op_total{comp,stage,result}
// - ifcheck_error_total{comp,code}
// - ifcheck_op_duration_ms{comp,stage}
// - ifcheck_check_total{constraint,result}
var (
	metricsMu sync.RWMutex
	reg       *prometheus.Registry
	opTotal   *prometheus.CounterVec
	errTotal  *prometheus.CounterVec
	opDur     *prometheus.HistogramVec
	chkTotal  *prometheus.CounterVec
)

func init() { ResetMetrics() }

// ResetMetrics 以全新 registry 重建全部收集器。
func ResetMetrics() {
	r := prometheus.NewRegistry()
	op := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ifcheck",
		Name:      "op_total",
		Help:      "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})
	er := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ifcheck",
		Name:      "error_total",
		Help:      "Errors by component and classification code.",
	}, []string{"comp", "code"})
	du := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ifcheck",
		Name:      "op_duration_ms",
		Help:      "Stage duration in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"comp", "stage"})
	ck := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ifcheck",
		Name:      "check_total",
		Help:      "Constraint checks by constraint id and result.",
	}, []string{"constraint", "result"})
	r.MustRegister(op, er, du, ck)

	metricsMu.Lock()
	reg, opTotal, errTotal, opDur, chkTotal = r, op, er, du, ck
	metricsMu.Unlock()
}

// Registry 返回当前指标 registry（供测试读取）。
func Registry() *prometheus.Registry {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return reg
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	errTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	opDur.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// IncCheck 累加约束检查结果（result=pass|fail|error）。
func IncCheck(constraint, result string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	chkTotal.WithLabelValues(constraint, result).Inc()
}

// WriteMetrics 以 Prometheus 文本格式写出当前指标；path 为空时 no-op。
func WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry())
}
