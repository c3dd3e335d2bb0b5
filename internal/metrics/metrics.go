// Package metrics 提供Prometheus监控指标
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// MetricsRegistry 指标注册表
type MetricsRegistry struct {
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	mu         sync.RWMutex
}

// Counter 计数器
type Counter struct {
	Name   string
	Help   string
	Labels []string
	values map[string]float64
	mu     sync.RWMutex
}

// Gauge 仪表盘
type Gauge struct {
	Name   string
	Help   string
	Labels []string
	values map[string]float64
	mu     sync.RWMutex
}

// Histogram 直方图
type Histogram struct {
	Name    string
	Help    string
	Labels  []string
	Buckets []float64
	counts  map[string][]int
	sums    map[string]float64
	mu      sync.RWMutex
}

var (
	registry *MetricsRegistry
	once     sync.Once
)

// GetRegistry 获取全局注册表
func GetRegistry() *MetricsRegistry {
	once.Do(func() {
		registry = &MetricsRegistry{
			counters:   make(map[string]*Counter),
			gauges:     make(map[string]*Gauge),
			histograms: make(map[string]*Histogram),
		}
		initDefaultMetrics()
	})
	return registry
}

// initDefaultMetrics 初始化默认指标
func initDefaultMetrics() {
	// 请求计数器
	registry.NewCounter("youpai_http_requests_total", "HTTP请求总数", []string{"method", "path", "status"})

	// 请求延迟直方图
	registry.NewHistogram("youpai_http_request_duration_seconds", "HTTP请求延迟",
		[]string{"method", "path"},
		[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0})

	// 优化会话计数器
	registry.NewCounter("youpai_optimization_sessions_total", "优化会话次数", []string{"status"})

	// 会话时长直方图
	registry.NewHistogram("youpai_optimization_session_duration_seconds", "优化会话时长",
		[]string{"status"},
		[]float64{0.5, 1.0, 2.5, 5.0, 10.0, 15.0, 30.0, 60.0})

	// 阶段时长直方图
	registry.NewHistogram("youpai_optimization_stage_duration_seconds", "流水线阶段时长",
		[]string{"stage"},
		[]float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0})

	// 候选与建议计数
	registry.NewCounter("youpai_candidates_generated_total", "生成的候选总数", []string{"pattern"})
	registry.NewCounter("youpai_candidates_excluded_total", "被排除的候选总数", []string{})

	// 约束评估计数器
	registry.NewCounter("youpai_constraint_evaluations_total", "约束评估次数", []string{"constraint_type", "result"})

	// 批量应用计数器
	registry.NewCounter("youpai_bulk_apply_total", "批量应用次数", []string{"mode", "status"})
	registry.NewCounter("youpai_bulk_rollback_total", "批量回滚次数", []string{})

	// 活动会话数
	registry.NewGauge("youpai_active_sessions", "当前运行中的优化会话数", []string{})

	// 数据库连接池
	registry.NewGauge("youpai_db_connections", "数据库连接数", []string{"state"})

	// 最新会话的最佳得分
	registry.NewGauge("youpai_best_suggestion_score", "最近会话的最佳建议得分", []string{})

	// 未覆盖缺口数
	registry.NewGauge("youpai_uncovered_gaps", "最近会话未被任何候选消解的缺口数", []string{})
}

// NewCounter 创建计数器
func (r *MetricsRegistry) NewCounter(name, help string, labels []string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter := &Counter{
		Name:   name,
		Help:   help,
		Labels: labels,
		values: make(map[string]float64),
	}
	r.counters[name] = counter
	return counter
}

// NewGauge 创建仪表盘
func (r *MetricsRegistry) NewGauge(name, help string, labels []string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	gauge := &Gauge{
		Name:   name,
		Help:   help,
		Labels: labels,
		values: make(map[string]float64),
	}
	r.gauges[name] = gauge
	return gauge
}

// NewHistogram 创建直方图
func (r *MetricsRegistry) NewHistogram(name, help string, labels []string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	histogram := &Histogram{
		Name:    name,
		Help:    help,
		Labels:  labels,
		Buckets: buckets,
		counts:  make(map[string][]int),
		sums:    make(map[string]float64),
	}
	r.histograms[name] = histogram
	return histogram
}

// GetCounter 获取计数器
func (r *MetricsRegistry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge 获取仪表盘
func (r *MetricsRegistry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// GetHistogram 获取直方图
func (r *MetricsRegistry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// Counter methods

// Inc 增加计数
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add 增加指定值
func (c *Counter) Add(value float64, labelValues ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := labelKey(labelValues)
	c.values[key] += value
}

// Gauge methods

// Set 设置值
func (g *Gauge) Set(value float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := labelKey(labelValues)
	g.values[key] = value
}

// Inc 增加
func (g *Gauge) Inc(labelValues ...string) {
	g.Add(1, labelValues...)
}

// Dec 减少
func (g *Gauge) Dec(labelValues ...string) {
	g.Add(-1, labelValues...)
}

// Add 增加指定值
func (g *Gauge) Add(value float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := labelKey(labelValues)
	g.values[key] += value
}

// Histogram methods

// Observe 记录观测值
func (h *Histogram) Observe(value float64, labelValues ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := labelKey(labelValues)

	if _, exists := h.counts[key]; !exists {
		h.counts[key] = make([]int, len(h.Buckets)+1)
	}

	for i, bucket := range h.Buckets {
		if value <= bucket {
			h.counts[key][i]++
		}
	}
	h.counts[key][len(h.Buckets)]++ // +Inf bucket

	h.sums[key] += value
}

// labelKey 生成标签键
func labelKey(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	key := ""
	for i, l := range labels {
		if i > 0 {
			key += ","
		}
		key += l
	}
	return key
}

// Handler 返回Prometheus格式的指标HTTP处理器
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		registry := GetRegistry()
		registry.mu.RLock()
		defer registry.mu.RUnlock()

		for _, counter := range registry.counters {
			fmt.Fprintf(w, "# HELP %s %s\n", counter.Name, counter.Help)
			fmt.Fprintf(w, "# TYPE %s counter\n", counter.Name)

			counter.mu.RLock()
			for key, value := range counter.values {
				if key == "" {
					fmt.Fprintf(w, "%s %f\n", counter.Name, value)
				} else {
					fmt.Fprintf(w, "%s{%s} %f\n", counter.Name, formatLabels(counter.Labels, key), value)
				}
			}
			counter.mu.RUnlock()
		}

		for _, gauge := range registry.gauges {
			fmt.Fprintf(w, "# HELP %s %s\n", gauge.Name, gauge.Help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", gauge.Name)

			gauge.mu.RLock()
			for key, value := range gauge.values {
				if key == "" {
					fmt.Fprintf(w, "%s %f\n", gauge.Name, value)
				} else {
					fmt.Fprintf(w, "%s{%s} %f\n", gauge.Name, formatLabels(gauge.Labels, key), value)
				}
			}
			gauge.mu.RUnlock()
		}

		for _, histogram := range registry.histograms {
			fmt.Fprintf(w, "# HELP %s %s\n", histogram.Name, histogram.Help)
			fmt.Fprintf(w, "# TYPE %s histogram\n", histogram.Name)

			histogram.mu.RLock()
			for key, counts := range histogram.counts {
				cumulative := 0
				for i, bucket := range histogram.Buckets {
					cumulative += counts[i]
					if key == "" {
						fmt.Fprintf(w, "%s_bucket{le=\"%f\"} %d\n", histogram.Name, bucket, cumulative)
					} else {
						fmt.Fprintf(w, "%s_bucket{%s,le=\"%f\"} %d\n", histogram.Name, formatLabels(histogram.Labels, key), bucket, cumulative)
					}
				}
				cumulative += counts[len(histogram.Buckets)]
				if key == "" {
					fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", histogram.Name, cumulative)
					fmt.Fprintf(w, "%s_sum %f\n", histogram.Name, histogram.sums[key])
					fmt.Fprintf(w, "%s_count %d\n", histogram.Name, cumulative)
				} else {
					fmt.Fprintf(w, "%s_bucket{%s,le=\"+Inf\"} %d\n", histogram.Name, formatLabels(histogram.Labels, key), cumulative)
					fmt.Fprintf(w, "%s_sum{%s} %f\n", histogram.Name, formatLabels(histogram.Labels, key), histogram.sums[key])
					fmt.Fprintf(w, "%s_count{%s} %d\n", histogram.Name, formatLabels(histogram.Labels, key), cumulative)
				}
			}
			histogram.mu.RUnlock()
		}
	})
}

// formatLabels 格式化标签
func formatLabels(names []string, values string) string {
	vals := splitLabelKey(values)
	result := ""
	for i, name := range names {
		if i > 0 {
			result += ","
		}
		val := ""
		if i < len(vals) {
			val = vals[i]
		}
		result += fmt.Sprintf("%s=\"%s\"", name, val)
	}
	return result
}

// splitLabelKey 分割标签键
func splitLabelKey(key string) []string {
	if key == "" {
		return nil
	}
	var result []string
	current := ""
	for _, c := range key {
		if c == ',' {
			result = append(result, current)
			current = ""
		} else {
			current += string(c)
		}
	}
	result = append(result, current)
	return result
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	registry := GetRegistry()

	counter := registry.GetCounter("youpai_http_requests_total")
	if counter != nil {
		counter.Inc(method, path, fmt.Sprintf("%d", status))
	}

	histogram := registry.GetHistogram("youpai_http_request_duration_seconds")
	if histogram != nil {
		histogram.Observe(duration.Seconds(), method, path)
	}
}

// RecordSessionFinished 记录优化会话结束指标
func RecordSessionFinished(status string, duration time.Duration, bestScore float64) {
	registry := GetRegistry()

	counter := registry.GetCounter("youpai_optimization_sessions_total")
	if counter != nil {
		counter.Inc(status)
	}

	histogram := registry.GetHistogram("youpai_optimization_session_duration_seconds")
	if histogram != nil {
		histogram.Observe(duration.Seconds(), status)
	}

	gauge := registry.GetGauge("youpai_best_suggestion_score")
	if gauge != nil {
		gauge.Set(bestScore)
	}
}

// RecordStageDuration 记录流水线阶段时长
func RecordStageDuration(stage string, duration time.Duration) {
	registry := GetRegistry()
	histogram := registry.GetHistogram("youpai_optimization_stage_duration_seconds")
	if histogram != nil {
		histogram.Observe(duration.Seconds(), stage)
	}
}

// RecordCandidates 记录候选生成与排除计数
func RecordCandidates(pattern string, generated int) {
	registry := GetRegistry()
	counter := registry.GetCounter("youpai_candidates_generated_total")
	if counter != nil {
		counter.Add(float64(generated), pattern)
	}
}

// RecordCandidateExcluded 记录候选被排除
func RecordCandidateExcluded() {
	registry := GetRegistry()
	counter := registry.GetCounter("youpai_candidates_excluded_total")
	if counter != nil {
		counter.Inc()
	}
}

// RecordConstraintEvaluation 记录约束评估指标
func RecordConstraintEvaluation(constraintType string, satisfied bool) {
	registry := GetRegistry()

	result := "satisfied"
	if !satisfied {
		result = "violated"
	}

	counter := registry.GetCounter("youpai_constraint_evaluations_total")
	if counter != nil {
		counter.Inc(constraintType, result)
	}
}

// RecordBulkApply 记录批量应用指标
func RecordBulkApply(mode, status string) {
	registry := GetRegistry()
	counter := registry.GetCounter("youpai_bulk_apply_total")
	if counter != nil {
		counter.Inc(mode, status)
	}
}

// RecordBulkRollback 记录批量回滚指标
func RecordBulkRollback() {
	registry := GetRegistry()
	counter := registry.GetCounter("youpai_bulk_rollback_total")
	if counter != nil {
		counter.Inc()
	}
}

// SetActiveSessions 设置运行中会话数
func SetActiveSessions(n int) {
	registry := GetRegistry()
	gauge := registry.GetGauge("youpai_active_sessions")
	if gauge != nil {
		gauge.Set(float64(n))
	}
}

// SetUncoveredGaps 设置最近会话的未覆盖缺口数
func SetUncoveredGaps(n int) {
	registry := GetRegistry()
	gauge := registry.GetGauge("youpai_uncovered_gaps")
	if gauge != nil {
		gauge.Set(float64(n))
	}
}
