// Package pairing renders WhatsApp pairing challenges for the operator.
package pairing

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/skip2/go-qrcode"

	"wabot/internal/metrics"
)

// ArtifactWriter atomically replaces a named file in the content directory.
type ArtifactWriter interface {
	WriteArtifact(name string, data []byte) error
}

type Config struct {
	Store    ArtifactWriter
	FileName string    // default: qr.png
	Out      io.Writer // terminal rendering target (default: stdout)
	Size     int       // PNG edge in pixels (default: 256)
	Logger   *slog.Logger
}

// Service turns pairing codes into a terminal QR and a PNG artifact. It
// remembers the last code it rendered and ignores repeats.
type Service struct {
	store    ArtifactWriter
	fileName string
	out      io.Writer
	size     int
	logger   *slog.Logger

	mu    sync.Mutex
	last  string
	ready bool
}

func New(cfg Config) *Service {
	if cfg.FileName == "" {
		cfg.FileName = "qr.png"
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		fileName: cfg.FileName,
		out:      cfg.Out,
		size:     cfg.Size,
		logger:   cfg.Logger,
	}
}

func (s *Service) FileName() string { return s.fileName }

// HandleCode renders a new pairing challenge.
func (s *Service) HandleCode(code string) error {
	if code == "" {
		return fmt.Errorf("empty pairing code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code == s.last {
		s.logger.Debug("pairing code unchanged, skipping render")
		return nil
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}

	fmt.Fprintln(s.out, qr.ToSmallString(false))

	png, err := qr.PNG(s.size)
	if err != nil {
		return fmt.Errorf("render qr png: %w", err)
	}
	if err := s.store.WriteArtifact(s.fileName, png); err != nil {
		return fmt.Errorf("write %s: %w", s.fileName, err)
	}

	s.last = code
	s.ready = false
	metrics.PairingCodes.Inc()
	s.logger.Info("pairing code updated, scan it from the terminal or /"+s.fileName, "file", s.fileName)
	return nil
}

// Ready records that the session is linked.
func (s *Service) Ready() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.logger.Info("client is ready")
}

// IsReady reports whether Ready was called after the last pairing code.
func (s *Service) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}
