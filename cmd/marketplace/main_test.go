package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/client"
	"github.com/alfredjeanlab/marketplace/internal/codec"
	"github.com/alfredjeanlab/marketplace/internal/config"
	"github.com/alfredjeanlab/marketplace/internal/logging"
	"github.com/alfredjeanlab/marketplace/internal/marketplace"
	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/projection"
	"github.com/alfredjeanlab/marketplace/internal/server"
	"github.com/alfredjeanlab/marketplace/internal/status"
	"github.com/alfredjeanlab/marketplace/internal/store/memory"
	"github.com/alfredjeanlab/marketplace/internal/ui"
)

func TestMain(m *testing.M) {
	ui.ForceNoColor()
	os.Exit(m.Run())
}

func TestRuntimeConfig(t *testing.T) {
	cfg := &config.Config{
		MaxLiveQueueSize:  10,
		ReadBatchSize:     20,
		Verbose:           true,
		RestartDelay:      2 * time.Second,
		PollInterval:      3 * time.Second,
		CheckpointSkipped: true,
	}
	rc := runtimeConfig(cfg)
	if rc.MaxLiveQueueSize != 10 || rc.ReadBatchSize != 20 || !rc.Verbose {
		t.Errorf("unexpected runtime config: %+v", rc)
	}
	if rc.RestartDelay != 2*time.Second || rc.PollInterval != 3*time.Second {
		t.Errorf("unexpected durations: %+v", rc)
	}
	if rc.Skipped != projection.SkipAndCheckpoint {
		t.Errorf("Skipped = %v, want SkipAndCheckpoint", rc.Skipped)
	}

	cfg.CheckpointSkipped = false
	if rc := runtimeConfig(cfg); rc.Skipped != projection.SkipWithoutCheckpoint {
		t.Errorf("Skipped = %v, want SkipWithoutCheckpoint", rc.Skipped)
	}
}

func TestEnabledProjections(t *testing.T) {
	st := memory.New()
	all := []projection.Projection{marketplace.NewOwnerIndex(st), marketplace.NewAvailableAds(st)}

	for _, tc := range []struct {
		name      string
		overrides map[string]config.ProjectionOverride
		want      []string
	}{
		{"no overrides", nil, []string{"owner-index", "available-ads"}},
		{"one disabled", map[string]config.ProjectionOverride{"owner-index": {Disabled: true}}, []string{"available-ads"}},
		{"explicitly enabled", map[string]config.ProjectionOverride{"available-ads": {Disabled: false}}, []string{"owner-index", "available-ads"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Projections: tc.overrides}
			got := enabledProjections(cfg, logging.Discard(), all...)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d projections, want %d", len(got), len(tc.want))
			}
			for i, p := range got {
				if p.Name() != tc.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, p.Name(), tc.want[i])
				}
			}
		})
	}
}

func TestNewExportScheduler(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	if s := newExportScheduler(ctx, &config.Config{}, st, logging.Discard()); s != nil {
		t.Error("expected no scheduler when the interval is zero")
	}
	if s := newExportScheduler(ctx, &config.Config{ExportInterval: time.Minute}, st, logging.Discard()); s != nil {
		t.Error("expected no scheduler without destinations")
	}
	cfg := &config.Config{
		ExportInterval:  time.Minute,
		ExportGitRepo:   t.TempDir(),
		ExportGitFile:   "readmodels.jsonl",
		ExportGitBranch: "main",
	}
	if s := newExportScheduler(ctx, cfg, st, logging.Discard()); s == nil {
		t.Error("expected a scheduler with a git destination")
	}
}

func TestServe_MemoryShutdown(t *testing.T) {
	cfg := &config.Config{
		Storage:           config.StorageMemory,
		HTTPAddr:          "127.0.0.1:0",
		GRPCAddr:          "127.0.0.1:0",
		Codec:             "json",
		PollInterval:      10 * time.Millisecond,
		RestartDelay:      10 * time.Millisecond,
		CheckpointSkipped: true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, logging.Discard()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestColorizeHelpOutput_NoColor(t *testing.T) {
	in := "Ads:\n  ads         Register ads\n\nFlags:\n      --http-url string   HTTP server URL (default \"x\")\n"
	if got := colorizeHelpOutput(in); got != in {
		t.Errorf("colorizeHelpOutput changed text with colors disabled:\n%s", got)
	}
}

func TestPrintStatusTable(t *testing.T) {
	var buf bytes.Buffer
	printStatusTable(&buf, []status.Entry{
		{Projection: "available-ads", Phase: status.PhaseLive, Position: 12, Processed: 7},
		{Projection: "owner-index", Phase: status.PhaseRestarting, Restarts: 2, LastReason: "ServerError"},
	})
	out := buf.String()
	for _, want := range []string{"PROJECTION", "available-ads", "live", "owner-index", "restarting", "ServerError"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a much longer title", 10, "a much ..."},
	} {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	if got := formatPrice(12.5, "EUR"); got != "12.50 EUR" {
		t.Errorf("formatPrice = %q", got)
	}
	if got := formatPrice(0, ""); got != "-" {
		t.Errorf("formatPrice without currency = %q", got)
	}
}

// runCLI executes the root command against a real server handler.
func runCLI(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--http-url", url, "--no-color"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCLI_AgainstServer(t *testing.T) {
	ms := memory.New()
	types, err := marketplace.NewTypeMapper()
	if err != nil {
		t.Fatalf("NewTypeMapper: %v", err)
	}
	tracker := status.New()
	tracker.SetPhase("owner-index", status.PhaseLive)
	srv := server.New(server.Options{
		Checkpoints: ms,
		ReadModels:  ms,
		Ads:         marketplace.NewService(ms, nil, types, codec.JSON{}, nil),
		Status:      tracker,
	})
	ts := httptest.NewServer(srv.NewHTTPHandler(""))
	t.Cleanup(ts.Close)

	out, err := runCLI(t, ts.URL, "ads", "register", "--owner", "owner-1", "--id", "ad-cli")
	if err != nil {
		t.Fatalf("register: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Registered ad-cli (position 1)") {
		t.Errorf("unexpected register output: %q", out)
	}

	out, err = runCLI(t, ts.URL, "ads", "title", "ad-cli", "Red bike")
	if err != nil {
		t.Fatalf("title: %v\n%s", err, out)
	}
	if !strings.Contains(out, "position 2") {
		t.Errorf("unexpected title output: %q", out)
	}

	if _, err := runCLI(t, ts.URL, "ads", "price", "ad-cli", "not-a-number"); err == nil {
		t.Error("expected an error for an invalid price")
	}

	out, err = runCLI(t, ts.URL, "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "owner-index") || !strings.Contains(out, "live") {
		t.Errorf("unexpected status output: %q", out)
	}

	out, err = runCLI(t, ts.URL, "health")
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Health: ok") {
		t.Errorf("unexpected health output: %q", out)
	}

	if err := ms.SetCheckpoint(context.Background(), "owner-index", model.Position(2)); err != nil {
		t.Fatalf("SetCheckpoint: %v", err)
	}
	out, err = runCLI(t, ts.URL, "checkpoints", "list")
	if err != nil {
		t.Fatalf("checkpoints list: %v\n%s", err, out)
	}
	if !strings.Contains(out, "owner-index") {
		t.Errorf("unexpected checkpoints output: %q", out)
	}
	if out, err := runCLI(t, ts.URL, "checkpoints", "reset", "owner-index"); err != nil {
		t.Fatalf("checkpoints reset: %v\n%s", err, out)
	}
	if _, err := ms.GetLastCheckpoint(context.Background(), "owner-index"); err == nil {
		t.Error("checkpoint still present after reset")
	}
}

var _ client.MarketplaceClient = (*client.HTTPClient)(nil)
