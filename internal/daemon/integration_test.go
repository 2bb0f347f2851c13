package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/autopdf/internal/config"
	"github.com/harunnryd/autopdf/internal/daemon"
	"github.com/harunnryd/autopdf/internal/daemon/components"
	"github.com/harunnryd/autopdf/internal/objectstore"
	"github.com/harunnryd/autopdf/internal/pipeline"
	"github.com/harunnryd/autopdf/internal/webhook"
)

type nopIndex struct{}

func (nopIndex) EnsureIndex(context.Context, string) error { return nil }

type nopRunner struct{}

func (nopRunner) Run(_ context.Context, ticketID int, _ pipeline.Mode) (pipeline.Result, error) {
	return pipeline.Result{IncidentID: ticketID}, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: freePort(t), ServiceName: "AutoPDF"},
		Daemon: config.DaemonConfig{
			DataDir:         filepath.Join(dir, "data"),
			ShutdownTimeout: "5s",
		},
	}

	d, err := daemon.NewDaemon(cfg)
	if err != nil {
		t.Fatalf("Failed to create daemon: %v", err)
	}

	backend, err := objectstore.NewFSBackend(filepath.Join(dir, "objects"), "reports")
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}

	d.AddComponent(components.NewPipelineComponent(objectstore.New(backend), nopIndex{}, "glpi_incidents", nil))
	d.AddComponent(components.NewHTTPServerComponent(d, &cfg.Server, webhook.NewHandler(nopRunner{}, cfg.Server.ServiceName)))
	return d, cfg
}

func waitRunning(t *testing.T, d *daemon.Daemon) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if d.Health() == daemon.StatusRunning {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("daemon did not reach running state, got %v", d.Health())
}

func TestDaemonFullLifecycle(t *testing.T) {
	d, cfg := testDaemon(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	startDone := make(chan error, 1)
	go func() {
		startDone <- d.Start(ctx)
	}()

	waitRunning(t, d)

	healths := d.ComponentHealth()
	if len(healths) != 2 {
		t.Errorf("Expected 2 components, got %d", len(healths))
	}
	for name, h := range healths {
		if !h.Healthy {
			t.Errorf("Component %s unhealthy: %v", name, h.Error)
		}
	}

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("Failed to get health endpoint: %v", err)
	}
	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("health status = %v, want ok", health["status"])
	}

	resp, err = http.Get(base + "/")
	if err != nil {
		t.Fatalf("Failed to get root endpoint: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "AutoPDF is running!") {
		t.Errorf("unexpected root body %s", body)
	}

	resp, err = http.Post(base+"/webhook", "application/json",
		strings.NewReader(`[{"event":"add","itemtype":"Ticket","items_id":42}]`))
	if err != nil {
		t.Fatalf("Failed to post webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("webhook status = %d, want 200", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-startDone:
		if err == nil {
			t.Error("Daemon.Start() should have returned error when context cancelled")
		} else if !strings.Contains(err.Error(), "context canceled") && !strings.Contains(err.Error(), "deadline exceeded") {
			t.Errorf("Daemon.Start() returned unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Daemon did not shut down within timeout")
	}

	if d.Health() != daemon.StatusStopped {
		t.Errorf("Expected StatusStopped after shutdown, got %v", d.Health())
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	first, cfg := testDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	startDone := make(chan error, 1)
	go func() {
		startDone <- first.Start(ctx)
	}()
	waitRunning(t, first)

	cfg2 := *cfg
	cfg2.Server.Port = freePort(t)
	cfg2.Daemon.LockTimeout = "100ms"
	cfg2.Daemon.LockRetry = "10ms"
	second, err := daemon.NewDaemon(&cfg2)
	if err != nil {
		t.Fatalf("Failed to create second daemon: %v", err)
	}

	err = second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "locked by another instance") {
		t.Errorf("expected lock error, got %v", err)
	}

	cancel()
	<-startDone
}
