package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestInfoTextFormat(t *testing.T) {
	var buf bytes.Buffer
	SetFormat(FormatText)
	SetWriter(&buf)
	defer SetWriter(io.Discard)

	Info("Test", "hello", nil)
	if !strings.Contains(buf.String(), "[Test] hello") {
		t.Errorf("log output = %q, want it to contain \"[Test] hello\"", buf.String())
	}
}

func TestInfoJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetFormat(FormatJSON)
	SetWriter(&buf)
	defer func() { SetFormat(FormatText); SetWriter(io.Discard) }()

	Info("Test", "hello", map[string]int{"n": 1})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Unmarshal: %v (raw=%q)", err, buf.String())
	}
	if entry.Level != "info" || entry.Component != "Test" || entry.Message != "hello" {
		t.Errorf("entry = %+v, want level=info component=Test message=hello", entry)
	}
}

func TestErrorJSONFormatIncludesErrorText(t *testing.T) {
	var buf bytes.Buffer
	SetFormat(FormatJSON)
	SetWriter(&buf)
	defer func() { SetFormat(FormatText); SetWriter(io.Discard) }()

	Error("Test", "broke", errors.New("boom"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Unmarshal: %v (raw=%q)", err, buf.String())
	}
	if entry.Level != "error" {
		t.Errorf("Level = %q, want error", entry.Level)
	}
	data, ok := entry.Data.(map[string]interface{})
	if !ok || data["error"] != "boom" {
		t.Errorf("Data = %+v, want {\"error\":\"boom\"}", entry.Data)
	}
}

func TestUpdateResultTextFormatReportsSuccessAndFailure(t *testing.T) {
	var buf bytes.Buffer
	SetFormat(FormatText)
	SetWriter(&buf)
	defer SetWriter(io.Discard)

	UpdateResult("db1", 100, true, "")
	if !strings.Contains(buf.String(), "db1: committed t=100") {
		t.Errorf("log output = %q, want a committed line for db1@100", buf.String())
	}

	buf.Reset()
	UpdateResult("db1", 110, false, "disk full")
	if !strings.Contains(buf.String(), "FAILED t=110 - disk full") {
		t.Errorf("log output = %q, want a FAILED line mentioning disk full", buf.String())
	}
}

func TestSetFormatAndGetFormatRoundTrip(t *testing.T) {
	SetFormat(FormatJSON)
	if got := GetFormat(); got != FormatJSON {
		t.Errorf("GetFormat() = %q, want %q", got, FormatJSON)
	}
	SetFormat(FormatText)
	if got := GetFormat(); got != FormatText {
		t.Errorf("GetFormat() = %q, want %q", got, FormatText)
	}
}
