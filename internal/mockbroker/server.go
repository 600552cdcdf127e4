package mockbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/config"
	"github.com/sshdock/sshdock/internal/logging"
	"github.com/sshdock/sshdock/internal/wire"
)

const writeTimeout = 10 * time.Second

type Server struct {
	devices   map[string]config.MockDevice
	order     []string
	tokens    *tokenStore
	authToken string
	connect   Connector
	log       *log.Logger

	mu     sync.Mutex
	active map[string]int
}

// Option customizes a Server.
type Option func(*Server)

// WithConnector replaces the backend factory.
func WithConnector(c Connector) Option {
	return func(s *Server) { s.connect = c }
}

// WithLogger replaces the shared logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.log = l }
}

func NewServer(cfg config.MockConfig, opts ...Option) *Server {
	s := &Server{
		devices:   make(map[string]config.MockDevice, len(cfg.Devices)),
		tokens:    newTokenStore(),
		authToken: cfg.Token,
		connect:   Connect,
		log:       logging.Logger,
		active:    make(map[string]int),
	}
	for _, d := range cfg.Devices {
		if _, dup := s.devices[d.UID]; dup {
			continue
		}
		s.devices[d.UID] = d
		s.order = append(s.order, d.UID)
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.WithPrefix("mockbroker")
	return s
}

// Routes wires the broker API:
//
//	GET  /api/devices  device list (bearer auth)
//	POST /ws/ssh       credential exchange (bearer auth)
//	GET  /ws/ssh       terminal socket (one-time token)
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.requestLog)

	r.Get("/ws/ssh", s.handleSocket)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/devices", s.handleDevices)
		r.Post("/ws/ssh", s.handleNegotiate)
	})
	return r
}

// Active returns how many sockets are bridged to device.
func (s *Server) Active(device string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[device]
}

type deviceResponse struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	out := make([]deviceResponse, 0, len(s.order))
	for _, uid := range s.order {
		d := s.devices[uid]
		out = append(out, deviceResponse{UID: d.UID, Name: d.Name, Online: !d.Offline})
	}
	writeJSON(w, http.StatusOK, out)
}

type negotiateRequest struct {
	Device   string `json:"device"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleNegotiate accepts any credentials for a known device. They are
// checked when the socket opens, as the real broker does, so that a wrong
// password reaches the client as an ERROR frame.
func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	var req negotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if _, ok := s.devices[req.Device]; !ok {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	tok := s.tokens.Issue(req.Device, Credentials{Username: req.Username, Password: req.Password})
	s.log.Debug("token issued", "device", req.Device, "user", req.Username)
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, ok := s.tokens.Take(q.Get("token"))
	if !ok {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	dev := s.devices[p.device]
	size := wire.Size{Cols: atoiDefault(q.Get("cols"), 80), Rows: atoiDefault(q.Get("rows"), 24)}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	l := s.log.With("device", dev.UID, "remote", r.RemoteAddr)
	l.Info("terminal connected", "cols", size.Cols, "rows", size.Rows)

	if raw := s.refuse(dev, p.creds); raw != "" {
		l.Info("refusing terminal", "reason", raw)
		sendError(conn, raw)
		return
	}

	backend, err := s.connect(r.Context(), dev, p.creds, size)
	if err != nil {
		l.Warn("backend failed", "err", err)
		sendError(conn, backendError(err))
		return
	}
	defer backend.Close()

	s.track(dev.UID, 1)
	defer s.track(dev.UID, -1)
	s.relay(conn, backend, l)
	l.Info("terminal disconnected")
}

// refuse returns the raw backend error for sockets that never get a backend.
func (s *Server) refuse(dev config.MockDevice, creds Credentials) string {
	switch {
	case dev.Offline:
		return classify.ErrDeviceOffline
	case dev.Kind == config.KindError:
		return dev.Error
	case dev.Kind == config.KindSSH:
		return ""
	case dev.Password != "" && creds.Password != dev.Password:
		return classify.ErrAuthentication
	case dev.Username != "" && creds.Username != dev.Username:
		return classify.ErrAuthentication
	}
	return ""
}

func backendError(err error) string {
	switch {
	case errors.Is(err, errAuth):
		return classify.ErrAuthentication
	case errors.Is(err, errPty):
		return classify.ErrRequestPty
	}
	return classify.ErrConnectDevice
}

// relay bridges the socket and the backend until either side ends. Output
// goes out as binary frames; INPUT and RESIZE control frames come in, and any
// other inbound payload is treated as raw stdin.
func (s *Server) relay(conn *websocket.Conn, backend Backend, l *log.Logger) {
	var writeMu sync.Mutex
	done := make(chan struct{})

	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := backend.Read(buf)
			if n > 0 {
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n])
				writeMu.Unlock()
				if werr != nil {
					return
				}
			}
			if err != nil {
				writeMu.Lock()
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				writeMu.Unlock()
				return
			}
		}
	}()

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				backend.Close()
				return
			}
			f, ok := wire.Parse(msg)
			if !ok {
				if _, err := backend.Write(msg); err != nil {
					return
				}
				continue
			}
			switch f.Kind {
			case wire.KindInput:
				text, err := f.Text()
				if err != nil {
					continue
				}
				if _, err := backend.Write([]byte(text)); err != nil {
					return
				}
			case wire.KindResize:
				sz, err := f.Size()
				if err != nil || sz.Cols <= 0 || sz.Rows <= 0 {
					continue
				}
				if err := backend.Resize(sz.Cols, sz.Rows); err != nil {
					l.Debug("resize failed", "err", err)
				}
			default:
				l.Debug("ignoring control frame", "kind", f.Kind)
			}
		}
	}()

	<-done
}

func (s *Server) track(device string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[device] += delta
	if s.active[device] <= 0 {
		delete(s.active, device)
	}
}

func sendError(conn *websocket.Conn, raw string) {
	frame, err := wire.EncodeError(raw)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "took", time.Since(start))
	})
}

// checkOrigin accepts non-browser clients and loopback or same-host origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves Routes on host:port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", srv.Addr, "devices", len(s.order))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
