// Package server exposes the liveness, pairing and status endpoints.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"

	"github.com/ArionMiles/spesabot/pkg/session"
)

const (
	// DefaultAliveResponse is served by / when no body is configured.
	DefaultAliveResponse = "Bot attivo 🚀"

	// NoCodeMessage is served by /qr before the first pairing code arrives.
	NoCodeMessage = "QR non ancora generato. Attendi qualche secondo..."
)

const shutdownTimeout = 5 * time.Second

// SessionReader exposes the session state to the handlers.
type SessionReader interface {
	PairingCode() (string, bool)
	State() session.State
}

// Config holds the server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string
	// AliveResponse is the body of GET /.
	AliveResponse string
}

// Server serves the HTTP endpoints of the bot.
type Server struct {
	cfg      Config
	session  SessionReader
	router   *mux.Router
	renderQR func(code string) ([]byte, error)
	logger   *slog.Logger
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State  string `json:"state"`
	Paired bool   `json:"paired"`
}

var qrPage = template.Must(template.New("qr").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Collega WhatsApp</title></head>
<body style="font-family: sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0;">
<div style="text-align: center;">
<h2>Scansiona il QR con WhatsApp</h2>
<img src="{{.Image}}" alt="QR code" width="300" height="300">
<p>WhatsApp &rarr; Dispositivi collegati &rarr; Collega un dispositivo</p>
</div>
</body>
</html>`))

// New creates a new Server reading from sess.
func New(cfg Config, sess SessionReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AliveResponse == "" {
		cfg.AliveResponse = DefaultAliveResponse
	}

	s := &Server{
		cfg:      cfg,
		session:  sess,
		renderQR: renderPNG,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleAlive).Methods(http.MethodGet)
	r.HandleFunc("/qr", s.handleQR).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleAlive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.cfg.AliveResponse)
}

func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request) {
	code, ok := s.session.PairingCode()
	if !ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, NoCodeMessage)
		return
	}

	png, err := s.renderQR(code)
	if err != nil {
		s.logger.Error("failed to render pairing code", "error", err)
		http.Error(w, "Errore nella generazione del QR", http.StatusInternalServerError)
		return
	}

	var page bytes.Buffer
	data := struct{ Image template.URL }{
		Image: template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)), //nolint:gosec // generated locally
	}
	if err := qrPage.Execute(&page, data); err != nil {
		s.logger.Error("failed to render pairing page", "error", err)
		http.Error(w, "Errore nella generazione del QR", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.session.State()
	resp := StatusResponse{
		State:  state.String(),
		Paired: state == session.Authenticated || state == session.Ready || state == session.Disconnected,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status", "error", err)
	}
}

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

// renderPNG encodes code as a QR code PNG image.
func renderPNG(code string) ([]byte, error) {
	qrc, err := qrcode.New(code)
	if err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}

	buf := nopCloser{Buffer: &bytes.Buffer{}}
	w := standard.NewWithWriter(buf,
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(10),
	)
	if err := qrc.Save(w); err != nil {
		return nil, fmt.Errorf("writing qr image: %w", err)
	}
	return buf.Bytes(), nil
}
