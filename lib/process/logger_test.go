// Copyright 2026 The Antenny Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, test := range tests {
		got, err := ParseLevel(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", test.input, got, test.want)
		}
	}
}

func TestNewLoggerToWritesJSON(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLoggerTo(&buffer, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("move scheduled", "device", 1)

	var entry map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not one JSON object: %v (%q)", err, buffer.String())
	}
	if entry["msg"] != "move scheduled" {
		t.Errorf("msg = %v, want move scheduled", entry["msg"])
	}
	if entry["device"] != float64(1) {
		t.Errorf("device = %v, want 1", entry["device"])
	}
}
