package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fishdata/catchgrid/internal/model"
)

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"collect", "grid", "runs", "serve", "config"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestCollectRequiredFlags(t *testing.T) {
	for _, name := range []string{"aoi", "srs", "cellsize", "workspace", "store", "workers", "keep-raw"} {
		assert.NotNil(t, collectCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	runs := []model.Run{
		{
			ID:        "run-1",
			Status:    model.RunStatusPartial,
			Catches:   42,
			Cells:     4,
			Failures:  []model.CellFailure{{Cell: 1, Err: "boom"}},
			Dropped:   2,
			CreatedAt: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
		},
	}

	formatRunsList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "2024-06-01 12:30")
}
