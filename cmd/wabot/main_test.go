package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wabot/internal/config"
)

func init() {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLogger_Levels(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		l := newLogger(in)
		if !l.Enabled(context.Background(), want) {
			t.Errorf("newLogger(%q) should enable %s", in, want)
		}
		if want > slog.LevelDebug && l.Enabled(context.Background(), want-4) {
			t.Errorf("newLogger(%q) should not enable %s", in, want-4)
		}
	}
}

func TestOpenStore_WithIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.General.ContentDir = filepath.Join(dir, "content")
	cfg.Media.IndexDB = filepath.Join(dir, "media.db")

	store, index, err := openStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	if store.Index() != index {
		t.Fatal("store should record into the opened index")
	}
	if _, err := os.Stat(cfg.General.ContentDir); err != nil {
		t.Fatalf("content directory not created: %v", err)
	}
}

func TestOpenStore_WithoutIndex(t *testing.T) {
	cfg := config.Defaults()
	cfg.General.ContentDir = filepath.Join(t.TempDir(), "content")
	cfg.Media.IndexDB = ""

	store, index, err := openStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if index != nil || store.Index() != nil {
		t.Fatal("expected no index")
	}
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	src := t.TempDir()
	cfgPath := filepath.Join(src, "config.json")
	cfg := config.Defaults()
	cfg.WhatsApp.SessionDB = filepath.Join(src, "session.db")
	cfg.Media.IndexDB = filepath.Join(src, "index.db")

	write := func(path, content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(cfgPath, `{"general":{}}`)
	write(cfg.WhatsApp.SessionDB, "session")
	write(cfg.WhatsApp.SessionDB+"-wal", "wal")
	write(cfg.Media.IndexDB, "index")

	members := backupMembers(cfgPath, cfg)
	if len(members) != 4 {
		t.Fatalf("expected 4 members, got %v", members)
	}
	if members["media.db"] != cfg.Media.IndexDB {
		t.Fatalf("index archived as %v", members)
	}

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	if err := createTarGz(archive, members); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	restoredCfg := config.Defaults()
	restoredCfg.WhatsApp.SessionDB = filepath.Join(dst, "data", "wa.db")
	restoredCfg.Media.IndexDB = filepath.Join(dst, "data", "media.db")
	targets := restoreTargets(filepath.Join(dst, "config.json"), restoredCfg)

	restored, err := extractTarGz(archive, targets)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 4 {
		t.Fatalf("expected 4 restored files, got %v", restored)
	}
	for path, want := range map[string]string{
		restoredCfg.WhatsApp.SessionDB:          "session",
		restoredCfg.WhatsApp.SessionDB + "-wal": "wal",
		restoredCfg.Media.IndexDB:               "index",
	} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestExtractTarGz_SkipsUnknownMembers(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "a.tar.gz")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	body := "x"
	tw.WriteHeader(&tar.Header{Name: "../../evil.sh", Mode: 0o644, Size: int64(len(body))})
	tw.Write([]byte(body))
	tw.Close()
	gz.Close()
	f.Close()

	restored, err := extractTarGz(archive, map[string]string{"config.json": filepath.Join(t.TempDir(), "config.json")})
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 0 {
		t.Fatalf("unknown member restored: %v", restored)
	}
}

func TestHumanSize(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
		3 << 30:         "3.0 GB",
	}
	for in, want := range tests {
		if got := humanSize(in); got != want {
			t.Errorf("humanSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderService_Systemd(t *testing.T) {
	path, tmpl, err := servicePath("linux", "/home/u")
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join("/home/u", ".config", "systemd", "user", "wabot.service") {
		t.Fatalf("unexpected path %s", path)
	}
	out, err := renderService(tmpl, serviceSpec{Exec: "/usr/local/bin/wabot", Config: "/etc/wabot.json"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "ExecStart=/usr/local/bin/wabot serve --config /etc/wabot.json") {
		t.Fatalf("unexpected unit:\n%s", out)
	}
}

func TestRenderService_Launchd(t *testing.T) {
	_, tmpl, err := servicePath("darwin", "/Users/u")
	if err != nil {
		t.Fatal(err)
	}
	out, err := renderService(tmpl, serviceSpec{Label: launchdLabel, Exec: "/bin/wabot", Config: "/c.json", Log: "/l", ErrLog: "/e"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	for _, want := range []string{"<string>com.wabot.serve</string>", "<string>serve</string>", "<string>/c.json</string>"} {
		if !strings.Contains(s, want) {
			t.Errorf("plist missing %s", want)
		}
	}
}

func TestServicePath_Unsupported(t *testing.T) {
	if _, _, err := servicePath("plan9", "/"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCheckWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "content")
	if err := checkWritableDir(dir); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}

func TestCheckDatabase(t *testing.T) {
	if err := checkDatabase(filepath.Join(t.TempDir(), "sub", "x.db")); err != nil {
		t.Fatal(err)
	}
}
