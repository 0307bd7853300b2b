package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/echopolis/market-engine/internal/config"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "echopolis.log")
	cfg.Logging.Level = "warn"

	logger, closer := New(cfg)
	logger.Info("hidden")
	logger.Warn("tick halted", "session", "s1")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"tick halted"`) || !strings.Contains(out, `"session":"s1"`) {
		t.Errorf("expected JSON warn record, got %q", out)
	}
}

func TestNew_StdoutOnly(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Logging.Level = "debug"

	logger, closer := New(cfg)
	defer closer.Close()
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
}
