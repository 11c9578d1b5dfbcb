package metrics

import (
	"net/http"
	"net/url"

	"pcba_station/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pcba"

var (
	// Registry 测试站专用的 Prometheus 注册表
	Registry = prometheus.NewRegistry()

	// StageEventsTotal 按阶段和状态统计发出的事件
	StageEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_events_total",
			Help:      "Stage events emitted, by stage and status",
		},
		[]string{"stage", "status"}, // status: testing | pass | fail
	)

	// StageDuration 阶段耗时（秒）
	StageDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a stage from testing report to final result",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 1.5, 2, 5},
		},
		[]string{"stage"},
	)

	// CommandsTotal 按类型统计处理的命令
	CommandsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands read from the shared file",
		},
		[]string{"kind"}, // search | test | legacy
	)

	// UIDsGeneratedTotal 生成的 UID 数量
	UIDsGeneratedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uids_generated_total",
			Help:      "Device UIDs generated by SEARCH commands",
		},
	)

	// ReportsTotal 按接口和结果统计上报次数
	ReportsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "HTTP reports sent to the backend",
		},
		[]string{"endpoint", "outcome"}, // outcome: success | error
	)
)

// ObserveStageResult 记录一个阶段事件
func ObserveStageResult(result *models.StageResult) {
	StageEventsTotal.WithLabelValues(string(result.Stage), string(result.Status)).Inc()
	if result.Final() {
		StageDuration.WithLabelValues(string(result.Stage)).Observe(result.Duration.Seconds())
	}
}

// ObserveCommand 记录一条命令
func ObserveCommand(cmd models.Command) {
	CommandsTotal.WithLabelValues(string(cmd.Kind)).Inc()
}

// ObserveUID 记录一次 UID 生成
func ObserveUID(string) {
	UIDsGeneratedTotal.Inc()
}

// ObserveReport 记录一次上报结果
func ObserveReport(endpoint string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	// 只以路径作为标签，避免主机名扩散
	if u, perr := url.Parse(endpoint); perr == nil && u.Path != "" {
		endpoint = u.Path
	}
	ReportsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
