package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/logstat/internal/model"
)

func serveConfig(t *testing.T) appConfig {
	t.Helper()
	cfg := testConfig(t)
	cfg.DBPath = ""
	cfg.APIAddr = "127.0.0.1:0"
	cfg.TCPAddr = "127.0.0.1:0"
	return cfg
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStartService_TCPStreamBecomesRun(t *testing.T) {
	svc, err := startService(serveConfig(t))
	if err != nil {
		t.Fatalf("startService: %v", err)
	}
	defer svc.stop()

	conn, err := net.Dial("tcp", svc.tcp.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write([]byte(validLog)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.(*net.TCPConn).CloseWrite()
	defer conn.Close()

	base := "http://" + svc.api.Addr()
	var list struct {
		Runs []model.Run `json:"runs"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(list.Runs) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the TCP run to be stored")
		}
		time.Sleep(20 * time.Millisecond)
		getJSON(t, base+"/api/runs", &list)
	}

	run := list.Runs[0]
	if !strings.HasPrefix(run.Source, "tcp:") {
		t.Errorf("source = %q, want tcp: prefix", run.Source)
	}
	if run.TotalEntries != 3 {
		t.Errorf("total_entries = %d, want 3", run.TotalEntries)
	}

	var stats model.LogStats
	if code := getJSON(t, base+"/api/runs/"+run.ID, &stats); code != http.StatusOK {
		t.Fatalf("GET run status = %d", code)
	}
	if stats.MostFrequentProcess != "kernel" || stats.ByProcess["kernel"] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStartService_DisabledFrontEnds(t *testing.T) {
	cfg := serveConfig(t)
	cfg.APIEnabled = false
	cfg.TCPEnabled = false

	svc, err := startService(cfg)
	if err != nil {
		t.Fatalf("startService: %v", err)
	}
	defer svc.stop()

	if svc.api != nil || svc.tcp != nil {
		t.Fatalf("front ends started while disabled: api=%v tcp=%v", svc.api, svc.tcp)
	}
	if svc.retention == nil {
		t.Error("retention cleaner not started with default retention-days")
	}
}

func TestStartService_BackupNeedsFileStore(t *testing.T) {
	cfg := serveConfig(t)
	cfg.BackupEnabled = true
	cfg.APIEnabled = false
	cfg.TCPEnabled = false

	if _, err := startService(cfg); err == nil {
		t.Fatal("expected error enabling backups on an in-memory store")
	}
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	cfg := serveConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	std, out, _ := testStdio("")

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, nil, std) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
	if !strings.Contains(out.String(), "HTTP API") {
		t.Errorf("banner missing from stdout: %q", out.String())
	}
}
