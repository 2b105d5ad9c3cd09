package zlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, b *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad JSON line %q: %v", line, err)
		}
		entries = append(entries, m)
	}
	return entries
}

func TestFactory_JSON(t *testing.T) {
	var buf bytes.Buffer
	f, err := New(Config{
		Writer: &buf,
		Format: FormatJSON,
		Level:  "warn",
		Scopes: map[string]string{"ota": "debug"},
		App:    "light",
	})
	if err != nil {
		t.Fatal(err)
	}
	dm := f.NewLogger("datamodel")
	dm.Infof("dropped %d", 1)
	dm.Warnf("kept %d", 2)
	o := f.NewLogger("ota")
	o.Debug("ota debug")
	o.Error("ota error")

	entries := decodeLines(t, &buf)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %s", len(entries), buf.String())
	}
	want := []struct{ scope, level, msg string }{
		{"datamodel", "warn", "kept 2"},
		{"ota", "debug", "ota debug"},
		{"ota", "error", "ota error"},
	}
	for i, w := range want {
		e := entries[i]
		if e["scope"] != w.scope || e["level"] != w.level || e["message"] != w.msg || e["app"] != "light" {
			t.Errorf("entry %d = %v, want %+v", i, e, w)
		}
	}
}

func TestFactory_Console(t *testing.T) {
	var buf bytes.Buffer
	f, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	f.NewLogger("hal").Info("button pressed")
	if !strings.Contains(buf.String(), "button pressed") || !strings.Contains(buf.String(), "hal") {
		t.Errorf("console output = %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []Config{
		{Format: "xml"},
		{Level: "loud"},
		{Scopes: map[string]string{"ota": "loud"}},
	}
	for _, cfg := range tests {
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New(%+v) = %v, want ErrInvalidConfig", cfg, err)
		}
	}
}

func TestParseScopes(t *testing.T) {
	got, err := ParseScopes("ota=debug, matter=warn,")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["ota"] != "debug" || got["matter"] != "warn" {
		t.Errorf("ParseScopes() = %v", got)
	}
	for _, s := range []string{"ota", "=debug", "ota=loud"} {
		if _, err := ParseScopes(s); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ParseScopes(%q) = %v, want ErrInvalidConfig", s, err)
		}
	}
}
