package main

import (
	"bytes"
	"flag"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tbrandon/mbserver"

	"github.com/hootrhino/solix-modbus/charger"
)

func startServer(t *testing.T) (*mbserver.Server, string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	serv := mbserver.NewServer()
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	if err := serv.ListenTCP(addr); err != nil {
		t.Fatalf("failed to start Modbus server: %v", err)
	}
	t.Cleanup(serv.Close)
	return serv, "127.0.0.1", port
}

func TestRun_ReadWrite(t *testing.T) {
	serv, host, port := startServer(t)
	serv.HoldingRegisters[charger.RegTotalActivePower] = 0x0001
	serv.HoldingRegisters[charger.RegTotalActivePower+1] = 0x0002
	serv.HoldingRegisters[charger.RegChargingStatus] = 2

	global := []string{"-host", host, "-port", strconv.Itoa(port), "-timeout", "1s"}
	var stdout, stderr bytes.Buffer

	if code := run(append(global, "read-u32", "20068"), &stdout, &stderr); code != 0 {
		t.Fatalf("read-u32 exited %d: %s", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != "65538" {
		t.Errorf("read-u32 printed %q, want 65538", got)
	}

	stdout.Reset()
	if code := run(append(global, "status"), &stdout, &stderr); code != 0 {
		t.Fatalf("status exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "charging") || !strings.Contains(stdout.String(), "65538 W") {
		t.Errorf("unexpected status output %q", stdout.String())
	}

	if code := run(append(global, "set-current", "16"), &stdout, &stderr); code != 0 {
		t.Fatalf("set-current exited %d: %s", code, stderr.String())
	}
	stdout.Reset()
	if code := run(append(global, "read-u16", "21004"), &stdout, &stderr); code != 0 {
		t.Fatalf("read-u16 exited %d: %s", code, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != "16" {
		t.Errorf("read back %q, want 16", got)
	}
}

func TestRun_Failures(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Errorf("no command exited %d, want 2", code)
	}
	if code := run([]string{"-host", "127.0.0.1", "frobnicate"}, &stdout, &stderr); code != 2 {
		t.Errorf("unknown command exited %d, want 2", code)
	}
	if code := run([]string{"-host", "127.0.0.1", "read-u16"}, &stdout, &stderr); code != 2 {
		t.Errorf("missing register exited %d, want 2", code)
	}
	if code := run([]string{"-host", "127.0.0.1", "set-current", "40"}, &stdout, &stderr); code != 1 {
		t.Errorf("out of range current exited %d, want 1", code)
	}
	if code := run([]string{"read-u16", "1"}, &stdout, &stderr); code != 1 {
		t.Errorf("missing host exited %d, want 1", code)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	stderr.Reset()
	started := time.Now()
	code := run([]string{"-host", "127.0.0.1", "-port", strconv.Itoa(port), "-timeout", "1s", "read-u16", "20097"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("connect failure exited %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "read_u16 register 20097") {
		t.Errorf("error not attributed: %q", stderr.String())
	}
	if time.Since(started) > 3*time.Second {
		t.Errorf("connect failure took %v", time.Since(started))
	}
}

func TestBuildConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"host": "10.0.0.5", "port": 1502, "word_order": "lo_hi"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var g globalFlags
	fs.StringVar(&g.host, "host", "", "")
	fs.IntVar(&g.port, "port", charger.DefaultPort, "")
	fs.IntVar(&g.offset, "offset", 0, "")
	fs.StringVar(&g.wordOrder, "word-order", "hi_lo", "")
	fs.UintVar(&g.unit, "unit", 1, "")
	fs.DurationVar(&g.timeout, "timeout", 5*time.Second, "")
	fs.StringVar(&g.configPath, "config", "", "")
	if err := fs.Parse([]string{"-config", path, "-port", "502", "-timeout", "1500ms"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	config, err := buildConfig(fs, g)
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}
	if config.Host != "10.0.0.5" || config.WordOrder != "lo_hi" {
		t.Errorf("config file values lost: %+v", config)
	}
	if config.Port != 502 || config.Timeout != 2 {
		t.Errorf("explicit flags not applied: %+v", config)
	}
}
