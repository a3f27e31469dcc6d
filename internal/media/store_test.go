package media

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(StoreConfig{Dir: filepath.Join(t.TempDir(), "content"), Logger: testLogger()})
	require.NoError(t, err)
	return s
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "content")
	_, err := NewStore(StoreConfig{Dir: dir, Logger: testLogger()})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	assert.Error(t, err)
}

func TestSaveRead_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	payload := []byte{0xff, 0xd8, 0xff, 0x00, 0x01}

	name, err := s.Save(context.Background(), "dl_1.jpg", payload, Meta{Kind: "dl"})
	require.NoError(t, err)
	assert.Equal(t, "dl_1.jpg", name)

	got, err := s.Read(name)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSave_RefusesExistingName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "image_1.png", []byte("first"), Meta{})
	require.NoError(t, err)
	_, err = s.Save(ctx, "image_1.png", []byte("second"), Meta{})
	require.Error(t, err)

	got, err := s.Read("image_1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got, "existing file must not be modified")
}

func TestSave_TooLarge(t *testing.T) {
	s, err := NewStore(StoreConfig{Dir: t.TempDir(), MaxBytes: 4, Logger: testLogger()})
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "big.bin", []byte("12345"), Meta{})
	assert.True(t, errors.Is(err, ErrTooLarge), "got %v", err)

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPath_StripsDirectories(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		in   string
		want string
	}{
		{"qr.png", "qr.png"},
		{"../../etc/passwd", "passwd"},
		{"/abs/path/file.jpg", "file.jpg"},
		{"sub/dir/x.webp", "x.webp"},
	}
	for _, tt := range tests {
		got, err := s.Path(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, filepath.Join(s.Dir(), tt.want), got)
	}
}

func TestPath_InvalidNames(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "/", ".", ".."} {
		_, err := s.Path(name)
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q: got %v", name, err)
	}
}

func TestRead_Missing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("nope.jpg")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpen_DirectoryIsNotFound(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub"), 0o755))

	_, _, err := s.Open("sub")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestList_ReturnsAllEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, n := range []string{"a.jpg", "b.png", "c.webp"} {
		_, err := s.Save(ctx, n, []byte(n), Meta{})
		require.NoError(t, err)
	}

	names, err = s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.jpg", "b.png", "c.webp"}, names)
}

func TestWriteArtifact_Overwrites(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteArtifact("qr.png", []byte("one")))
	require.NoError(t, s.WriteArtifact("qr.png", []byte("two")))

	got, err := s.Read("qr.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"qr.png"}, names, "no temp files may remain")
}

func TestSave_RecordsInIndex(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "media.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	s, err := NewStore(StoreConfig{Dir: t.TempDir(), Index: idx, Logger: testLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Save(ctx, "sticker_1.webp", []byte("RIFF"), Meta{Kind: "sticker", MimeType: "image/webp", Channel: "whatsapp", ChatID: "123@g.us", SenderID: "4477@s.whatsapp.net"})
	require.NoError(t, err)

	entries, err := idx.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sticker_1.webp", entries[0].Name)
	assert.Equal(t, "sticker", entries[0].Kind)
	assert.Equal(t, int64(4), entries[0].Size)
	assert.Equal(t, "123@g.us", entries[0].ChatID)
	assert.Equal(t, "4477@s.whatsapp.net", entries[0].SenderID)
}

func TestOpenIndex_AddsSenderColumnToOlderIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE media_files (
		name TEXT PRIMARY KEY, kind TEXT NOT NULL, mime_type TEXT, size INTEGER NOT NULL,
		channel TEXT, chat_id TEXT, created_at DATETIME NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO media_files (name, kind, size, created_at) VALUES ('old.jpg', 'image', 3, ?)`, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	idx, err := OpenIndex(path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.Record(ctx, Entry{Name: "new.jpg", Kind: "image", SenderID: "u1", CreatedAt: time.Now().Add(time.Minute)}))

	entries, err := idx.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[0].SenderID)
	assert.Equal(t, "old.jpg", entries[1].Name)
	assert.Empty(t, entries[1].SenderID)
}

func TestIndex_RecentNewestFirst(t *testing.T) {
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "media.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"old.jpg", "mid.jpg", "new.jpg"} {
		require.NoError(t, idx.Record(ctx, Entry{Name: name, Kind: "image", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	entries, err := idx.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new.jpg", entries[0].Name)
	assert.Equal(t, "mid.jpg", entries[1].Name)
}

func TestFileName_Format(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	name := FileName("dl", "jpg", now)
	assert.True(t, strings.HasPrefix(name, "dl_1700000000123-"), name)
	assert.True(t, strings.HasSuffix(name, ".jpg"), name)
	assert.Len(t, name, len("dl_1700000000123-")+8+len(".jpg"))

	assert.True(t, strings.HasSuffix(FileName("audio", "", now), ".bin"))
	assert.True(t, strings.HasSuffix(FileName("image", ".png", now), ".png"))
}

func TestFileName_UniqueWithinSameMillisecond(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		name := FileName("image", "jpeg", now)
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
}
