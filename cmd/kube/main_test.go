package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLayoutCommand(t *testing.T) {
	out, err := execute(t, "layout")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"SWAP_EXTENT", "PROJECTION", "FRAME", "FPS", "binding 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("layout output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("version output = %q", out)
	}
}

func TestRun_Headless(t *testing.T) {
	t.Setenv("KUBE_LOGGING_CONSOLE", "false")
	if _, err := execute(t, "--headless", "--frames", "5"); err != nil {
		t.Fatalf("headless run: %v", err)
	}
}

func TestRun_CancelledContextStopsCleanly(t *testing.T) {
	t.Setenv("KUBE_LOGGING_CONSOLE", "false")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--headless"})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("cancelled run: %v", err)
	}
}
