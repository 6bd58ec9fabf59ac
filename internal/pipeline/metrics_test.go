// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_SuccessfulStream(t *testing.T) {
	openLabels := map[string]string{"topology": "single", "result": "ok"}
	doneLabels := map[string]string{"topology": "single", "state": "done"}
	exitLabels := map[string]string{"stage": "extractor", "reason": "ok"}

	beforeOpen := getCounterValue(t, "podstream_pipeline_open_total", openLabels)
	beforeDone := getCounterValue(t, "podstream_pipeline_outcome_total", doneLabels)
	beforeExit := getCounterValue(t, "podstream_process_exit_total", exitLabels)
	beforeBytes := getCounterValue(t, "podstream_pipeline_bytes_total", map[string]string{"topology": "single"})

	extractor := fakeBinary(t, "yt-dlp", `printf '0123456789'`)
	h, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
	require.NoError(t, err)
	_, err = io.ReadAll(h)
	require.NoError(t, err)

	assert.Equal(t, beforeOpen+1, getCounterValue(t, "podstream_pipeline_open_total", openLabels))
	assert.Equal(t, beforeDone+1, getCounterValue(t, "podstream_pipeline_outcome_total", doneLabels))
	assert.Equal(t, beforeExit+1, getCounterValue(t, "podstream_process_exit_total", exitLabels))
	assert.Equal(t, beforeBytes+10, getCounterValue(t, "podstream_pipeline_bytes_total", map[string]string{"topology": "single"}))
	assert.Equal(t, float64(0), getGaugeValue(t, "podstream_pipeline_active", map[string]string{"topology": "single"}))
}

func TestMetrics_RejectedOpen(t *testing.T) {
	labels := map[string]string{"topology": "single", "result": "rejected"}
	before := getCounterValue(t, "podstream_pipeline_open_total", labels)

	extractor := fakeBinary(t, "yt-dlp", `exit 1`)
	_, err := newTestRunner(extractor, "ffmpeg").Open(context.Background(), Request{SourceID: "abc", Profile: mp3Profile})
	require.Error(t, err)

	assert.Equal(t, before+1, getCounterValue(t, "podstream_pipeline_open_total", labels))
}

func getCounterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	if m := findMetric(t, name, labels); m != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

func getGaugeValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	if m := findMetric(t, name, labels); m != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}

func findMetric(t *testing.T, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if labelsMatch(m.GetLabel(), labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}
