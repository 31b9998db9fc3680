// Package monitoring 提供进程内指标收集与Prometheus文本导出
package monitoring

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// series 同名同标签的一条时间序列
type series struct {
	labels map[string]string
	value  float64
	// summary 使用
	count uint64
	sum   float64
}

type family struct {
	help   string
	typ    MetricType
	series map[string]*series
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	mu        sync.RWMutex
	families  map[string]*family
	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		families:  make(map[string]*family),
		startTime: time.Now(),
	}
}

// Describe 为指标设置说明文字
func (mc *MetricsCollector) Describe(name, help string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if f, ok := mc.families[name]; ok {
		f.help = help
		return
	}
	mc.families[name] = &family{help: help, series: make(map[string]*series)}
}

func (mc *MetricsCollector) get(name string, typ MetricType, labels map[string]string) *series {
	f, ok := mc.families[name]
	if !ok {
		f = &family{series: make(map[string]*series)}
		mc.families[name] = f
	}
	if f.typ == "" {
		f.typ = typ
	}
	key := labelKey(labels)
	s, ok := f.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &series{labels: copied}
		f.series[key] = s
	}
	return s
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.get(name, MetricTypeCounter, labels).value += value
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.get(name, MetricTypeGauge, labels).value = value
}

// Observe 记录一次观测值（如耗时），导出为 _sum 与 _count
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	s := mc.get(name, MetricTypeSummary, labels)
	s.count++
	s.sum += value
}

// Value 返回计数器或仪表的当前值
func (mc *MetricsCollector) Value(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	f, ok := mc.families[name]
	if !ok {
		return 0
	}
	if s, ok := f.series[labelKey(labels)]; ok {
		return s.value
	}
	return 0
}

// ExportPrometheus 以Prometheus文本格式写出所有指标
func (mc *MetricsCollector) ExportPrometheus(w io.Writer) error {
	mc.collectRuntimeMetrics()

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	names := make([]string, 0, len(mc.families))
	for name := range mc.families {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		f := mc.families[name]
		if len(f.series) == 0 {
			continue
		}
		help := f.help
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, f.typ)

		keys := make([]string, 0, len(f.series))
		for key := range f.series {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			s := f.series[key]
			labels := formatLabels(s.labels)
			if f.typ == MetricTypeSummary {
				fmt.Fprintf(&b, "%s_sum%s %s\n", name, labels, formatValue(s.sum))
				fmt.Fprintf(&b, "%s_count%s %d\n", name, labels, s.count)
				continue
			}
			fmt.Fprintf(&b, "%s%s %s\n", name, labels, formatValue(s.value))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// collectRuntimeMetrics 收集运行时指标
func (mc *MetricsCollector) collectRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.SetGauge("process_uptime_seconds", mc.GetUptime().Seconds(), nil)
	mc.SetGauge("go_goroutines", float64(runtime.NumGoroutine()), nil)
	mc.SetGauge("go_memstats_heap_alloc_bytes", float64(m.HeapAlloc), nil)
	mc.SetGauge("go_memstats_heap_sys_bytes", float64(m.HeapSys), nil)
	mc.SetGauge("go_gc_count", float64(m.NumGC), nil)
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(labels[k])
		b.WriteByte(0)
	}
	return b.String()
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
