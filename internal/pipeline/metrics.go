// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podstream_pipeline_open_total",
		Help: "Total number of pipeline open attempts by topology and result",
	}, []string{"topology", "result"})

	outcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podstream_pipeline_outcome_total",
		Help: "Total number of delivered streams by topology and terminal state",
	}, []string{"topology", "state"})

	activeStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podstream_pipeline_active",
		Help: "Number of streams currently delivering bytes",
	}, []string{"topology"})

	firstByteSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podstream_pipeline_first_byte_seconds",
		Help:    "Time from spawn to handle delivery",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30},
	}, []string{"topology"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podstream_pipeline_bytes_total",
		Help: "Total number of audio bytes handed to consumers",
	}, []string{"topology"})

	processExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podstream_process_exit_total",
		Help: "Total number of supervised process exits by stage and reason",
	}, []string{"stage", "reason"})
)
