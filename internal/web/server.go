// Package web serves the thermostat dashboard: an HTML page, JSON
// endpoints and a websocket stream of processed records.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/thermostat/internal/processed"
	"github.com/sweeney/thermostat/internal/status"
)

// maxRecords caps ?n= on /records.json.
const maxRecords = 1000

// pingInterval keeps idle websocket connections alive.
const pingInterval = 30 * time.Second

// Options configures a Server.
type Options struct {
	Addr    string
	Tracker *status.Tracker
	Records processed.Reader
	Hub     *Hub

	// Window is the number of records shown by default.
	Window int

	// OriginPatterns lists extra hosts allowed to open the websocket.
	OriginPatterns []string

	Logger *slog.Logger
}

// Server serves the dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	records    processed.Reader
	hub        *Hub
	window     int
	origins    []string
	log        *slog.Logger
}

// New creates a Server. Routes are registered immediately; call
// ListenAndServe or Serve to start.
func New(o Options) *Server {
	if o.Window <= 0 {
		o.Window = processed.DefaultWindow
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Hub == nil {
		o.Hub = NewHub()
	}
	s := &Server{
		tracker: o.Tracker,
		records: o.Records,
		hub:     o.Hub,
		window:  o.Window,
		origins: o.OriginPatterns,
		log:     o.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/records.json", s.handleRecords)
	r.Get("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server. Websocket handlers are
// hijacked connections and exit when their request context ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	recs, err := s.records.Tail(s.window)
	if err != nil {
		s.log.Warn("read processed records", "error", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, recs, err); err != nil {
		s.log.Error("render dashboard", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	n := s.window
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(parsed, maxRecords)
	}

	recs, err := s.records.Tail(n)
	if err != nil {
		s.log.Warn("read processed records", "error", err)
		http.Error(w, "processed records unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatRecords(recs))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.log.Warn("websocket accept", "error", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "unexpected close")

	// Subscribe before reading the window so no record falls in between.
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := c.CloseRead(r.Context())

	recs, err := s.records.Tail(s.window)
	if err != nil {
		s.log.Warn("read processed records", "error", err)
	}
	if recs == nil {
		recs = []processed.Record{}
	}
	if err := wsjson.Write(ctx, c, Message{Type: MessageWindow, Records: recs}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return

		case msg, ok := <-sub:
			if !ok {
				c.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			if err := wsjson.Write(ctx, c, msg); err != nil {
				s.log.Debug("websocket write", "error", err)
				return
			}

		case <-ping.C:
			if err := c.Ping(ctx); err != nil {
				return
			}
		}
	}
}
