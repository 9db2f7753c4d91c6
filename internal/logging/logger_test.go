package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetup_JSONOutputAndLevel(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	if err := setup(&buf, "WARN", false); err != nil {
		t.Fatalf("setup: %v", err)
	}

	log.Info().Msg("hidden")
	log.Warn().Str("key", "abc123").Msg("shown")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "shown" || line["key"] != "abc123" || line["level"] != "warn" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if line["service"] != "ssfile" {
		t.Fatalf("expected service field, got %v", line)
	}
}

func TestSetup_EmptyLevelDefaultsToInfo(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	if err := setup(&buf, "", false); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	if err := Setup("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
