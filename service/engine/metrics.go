/*
 * @module service/engine/metrics
 * @description 检测引擎 Prometheus 指标
 * @architecture 业务服务层 - 监控
 * @documentReference ai_docs/survey_quality_req.md
 * @dependencies prometheus/client_golang
 * @refs service/engine/scheduler.go
 */

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyqc",
		Subsystem: "engine",
		Name:      "check_runs_total",
		Help:      "检测项执行总数，按检测项与状态分类",
	}, []string{"check", "status"})

	checkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "surveyqc",
		Subsystem: "engine",
		Name:      "check_duration_seconds",
		Help:      "检测项执行耗时",
		Buckets:   prometheus.DefBuckets,
	}, []string{"check"})

	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyqc",
		Subsystem: "engine",
		Name:      "findings_total",
		Help:      "检测产出的问题总数",
	}, []string{"check"})
)

func observeCheck(checkID, status string, d time.Duration) {
	checkRunsTotal.WithLabelValues(checkID, status).Inc()
	checkDuration.WithLabelValues(checkID).Observe(d.Seconds())
}

// ObserveFindings 记录检测项产出的问题数
func ObserveFindings(checkID string, n int) {
	findingsTotal.WithLabelValues(checkID).Add(float64(n))
}
