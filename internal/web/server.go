// Package web serves the pairing image, stored media and metrics over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wabot/internal/media"
)

const recentFilesLimit = 100

// Server is the HTTP surface of the bot.
type Server struct {
	host            string
	port            int
	store           *media.Store
	qrFile          string
	metricsEndpoint string
	logger          *slog.Logger
	server          *http.Server
}

type ServerConfig struct {
	Host            string
	Port            int
	Store           *media.Store
	QRFile          string // pairing image inside the content directory
	MetricsEndpoint string // empty disables /metrics
	Logger          *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QRFile == "" {
		cfg.QRFile = "qr.png"
	}
	return &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		store:           cfg.Store,
		qrFile:          cfg.QRFile,
		metricsEndpoint: cfg.MetricsEndpoint,
		logger:          cfg.Logger,
	}
}

// Handler returns the routed handler wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /qr.png", s.handleQR)
	mux.HandleFunc("GET /files", s.handleList)
	mux.HandleFunc("GET /files/{name}", s.handleFile)
	if s.metricsEndpoint != "" {
		mux.Handle("GET "+s.metricsEndpoint, promhttp.Handler())
	}
	return Metrics(mux)
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("http server started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleRoot(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(rw, "wabot is running")
}

func (s *Server) handleQR(rw http.ResponseWriter, r *http.Request) {
	s.serveStored(rw, r, s.qrFile)
}

func (s *Server) handleFile(rw http.ResponseWriter, r *http.Request) {
	s.serveStored(rw, r, r.PathValue("name"))
}

// serveStored streams a file of the content directory. The name is reduced
// to its base, so path components in the request cannot leave the directory.
func (s *Server) serveStored(rw http.ResponseWriter, r *http.Request, name string) {
	f, info, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidName) {
			http.NotFound(rw, r)
			return
		}
		s.logger.Error("serve file failed", "file", name, "err", err)
		http.Error(rw, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	http.ServeContent(rw, r, info.Name(), info.ModTime(), f)
}

type fileListResponse struct {
	Files   []media.Entry `json:"files,omitempty"`
	Names   []string      `json:"names,omitempty"`
	Indexed bool          `json:"indexed"`
}

// handleList returns the latest index records, or the raw directory names
// when no index is configured.
func (s *Server) handleList(rw http.ResponseWriter, r *http.Request) {
	var resp fileListResponse
	if idx := s.store.Index(); idx != nil {
		entries, err := idx.Recent(r.Context(), recentFilesLimit)
		if err != nil {
			s.logger.Error("list indexed files failed", "err", err)
			http.Error(rw, "internal error", http.StatusInternalServerError)
			return
		}
		resp = fileListResponse{Files: entries, Indexed: true}
	} else {
		names, err := s.store.List()
		if err != nil {
			s.logger.Error("list files failed", "err", err)
			http.Error(rw, "internal error", http.StatusInternalServerError)
			return
		}
		resp = fileListResponse{Names: names}
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(resp)
}
