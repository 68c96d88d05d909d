package logging

import (
	"strings"
	"testing"
)

func TestLoggerRespectsMinLevel(t *testing.T) {
	output := &strings.Builder{}
	logger := NewLoggerWithOutput(NewBuffer(10), LevelWarning, output)

	logger.Debug("dropped", nil)
	logger.Info("dropped", nil)
	logger.Warn("kept", nil)
	logger.Error("kept", nil)

	entries := logger.Buffer().List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning || entries[1].Level != LevelError {
		t.Fatalf("unexpected levels: %v, %v", entries[0].Level, entries[1].Level)
	}
	if !strings.Contains(output.String(), `msg="kept"`) {
		t.Fatalf("expected formatted output, got %q", output.String())
	}
}

func TestLoggerWithMergesFields(t *testing.T) {
	logger := NewLoggerWithOutput(NewBuffer(10), LevelInfo, nil)
	child := logger.With(map[string]string{"component": "gate"})

	child.Info("tick", map[string]string{"dirty": "true"})

	entries := logger.Buffer().List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	context := entries[0].Context
	if context["component"] != "gate" || context["dirty"] != "true" {
		t.Fatalf("unexpected context: %v", context)
	}
}

func TestBufferEvictsOldestEntries(t *testing.T) {
	buffer := NewBuffer(3)
	for _, message := range []string{"a", "b", "c", "d"} {
		buffer.Add(Entry{Message: message})
	}

	entries := buffer.List()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "b" || entries[2].Message != "d" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warn", LevelWarning, true},
		{" error ", LevelError, true},
		{"verbose", "", false},
	}
	for _, testCase := range cases {
		got, ok := ParseLevel(testCase.input)
		if got != testCase.want || ok != testCase.ok {
			t.Fatalf("ParseLevel(%q) = %q, %v", testCase.input, got, ok)
		}
	}
}
