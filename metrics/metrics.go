// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	MetricsNamespace          = "kbclient"
	MetricsSubsystemSystem    = "system"
	MetricsSubsystemLLM       = "llm"
	MetricsSubsystemCitations = "citations"

	MetricsVersionLabel = "version"
)

type Metrics interface {
	GetRegistry() *prometheus.Registry

	GetMetricsForAIService(llmName string) *llmMetrics

	ObserveTokenUsage(llmName string, inputTokens, outputTokens int64)
	ObserveAnnotatedAnswer(referenceCount int)
}

type InstanceInfo struct {
	Version string
}

// metrics used to instrumentate metrics in prometheus.
type metrics struct {
	registry *prometheus.Registry

	clientStartTime prometheus.Gauge
	clientInfo      prometheus.Gauge

	llmRequestsTotal *prometheus.CounterVec
	llmErrorsTotal   *prometheus.CounterVec

	llmInputTokensTotal  *prometheus.CounterVec
	llmOutputTokensTotal *prometheus.CounterVec

	annotatedAnswersTotal prometheus.Counter
	referenceLinesTotal   prometheus.Counter
}

// NewMetrics Factory method to create a new metrics collector.
func NewMetrics(info InstanceInfo) Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	options := collectors.ProcessCollectorOpts{
		Namespace: MetricsNamespace,
	}
	m.registry.MustRegister(collectors.NewProcessCollector(options))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.clientStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "client_start_timestamp_seconds",
		Help:      "The time the client started.",
	})
	m.clientStartTime.SetToCurrentTime()
	m.registry.MustRegister(m.clientStartTime)

	m.clientInfo = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "client_info",
		Help:      "The client version.",
		ConstLabels: map[string]string{
			MetricsVersionLabel: info.Version,
		},
	})
	m.clientInfo.Set(1)
	m.registry.MustRegister(m.clientInfo)

	m.llmRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemLLM,
		Name:      "requests_total",
		Help:      "The total number of LLM requests.",
	}, []string{"llm_name"})
	m.registry.MustRegister(m.llmRequestsTotal)

	m.llmErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemLLM,
		Name:      "errors_total",
		Help:      "The total number of failed LLM requests.",
	}, []string{"llm_name"})
	m.registry.MustRegister(m.llmErrorsTotal)

	m.llmInputTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemLLM,
		Name:      "input_tokens_total",
		Help:      "The total number of input tokens consumed by LLM requests.",
	}, []string{"llm_name"})
	m.registry.MustRegister(m.llmInputTokensTotal)

	m.llmOutputTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemLLM,
		Name:      "output_tokens_total",
		Help:      "The total number of output tokens consumed by LLM requests.",
	}, []string{"llm_name"})
	m.registry.MustRegister(m.llmOutputTokensTotal)

	m.annotatedAnswersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemCitations,
		Name:      "annotated_answers_total",
		Help:      "The total number of answers annotated with citation markers.",
	})
	m.registry.MustRegister(m.annotatedAnswersTotal)

	m.referenceLinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemCitations,
		Name:      "reference_lines_total",
		Help:      "The total number of reference lines emitted for annotated answers.",
	})
	m.registry.MustRegister(m.referenceLinesTotal)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) GetMetricsForAIService(llmName string) *llmMetrics {
	if m == nil {
		return nil
	}

	labels := prometheus.Labels{"llm_name": llmName}
	return &llmMetrics{
		llmRequestsTotal: m.llmRequestsTotal.MustCurryWith(labels),
		llmErrorsTotal:   m.llmErrorsTotal.MustCurryWith(labels),
	}
}

type LLMetrics interface {
	IncrementLLMRequests()
	IncrementLLMErrors()
}

type llmMetrics struct {
	llmRequestsTotal *prometheus.CounterVec
	llmErrorsTotal   *prometheus.CounterVec
}

func (m *llmMetrics) IncrementLLMRequests() {
	if m != nil {
		m.llmRequestsTotal.With(prometheus.Labels{}).Inc()
	}
}

func (m *llmMetrics) IncrementLLMErrors() {
	if m != nil {
		m.llmErrorsTotal.With(prometheus.Labels{}).Inc()
	}
}

func (m *metrics) ObserveTokenUsage(llmName string, inputTokens, outputTokens int64) {
	if m == nil {
		return
	}

	// Use "unknown" for a missing dimension to allow aggregation
	if llmName == "" {
		llmName = "unknown"
	}

	labels := prometheus.Labels{"llm_name": llmName}
	m.llmInputTokensTotal.With(labels).Add(float64(inputTokens))
	m.llmOutputTokensTotal.With(labels).Add(float64(outputTokens))
}

func (m *metrics) ObserveAnnotatedAnswer(referenceCount int) {
	if m == nil {
		return
	}

	m.annotatedAnswersTotal.Inc()
	m.referenceLinesTotal.Add(float64(referenceCount))
}
