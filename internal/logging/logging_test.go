package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kube.log")
	if err := Init("debug", path, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { Set(nil) })

	if Get().GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", Get().GetLevel())
	}
	WithComponent("window").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "component=window") {
		t.Errorf("log = %q, want component field", data)
	}
}

func TestInitBadLevelFallsBack(t *testing.T) {
	if err := Init("chatty", "", false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { Set(nil) })
	if Get().GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", Get().GetLevel())
	}
}
