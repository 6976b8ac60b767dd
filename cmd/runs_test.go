package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/soil-etl/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(1500 * time.Millisecond)
	runs := []store.Run{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Status:     store.RunStatusComplete,
			Report:     []byte(`{"records": 120, "dropped_records": 3, "rows": 240}`),
			StartedAt:  now,
			FinishedAt: &done,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    store.RunStatusRunning,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "120")
	assert.Contains(t, output, "240")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatRunsList_BadReport(t *testing.T) {
	runs := []store.Run{{
		ID:     "r1",
		Status: store.RunStatusFailed,
		Report: []byte(`not json`),
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "failed")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
