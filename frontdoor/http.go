package frontdoor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/agentrt/agentrt/config"
	"github.com/agentrt/agentrt/conversation"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
)

// Server is the HTTP front door over a conversation.Manager. It owns no
// conversation state of its own: every handler is a thin translation
// between an HTTP request/response and one Manager call, mirroring
// telnet2-opencode's Server (router + httpSrv wrapping a fixed set of
// domain collaborators).
type Server struct {
	mgr    *conversation.Manager
	router *mux.Router
	httpSrv *http.Server
}

// Options configures the HTTP server's transport concerns.
type Options struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 0 // long-poll/event endpoints need unbounded writes
	}
	return o
}

// New builds a Server wired to mgr, with routes and CORS middleware
// installed but not yet listening — call Start to serve.
func New(mgr *conversation.Manager, opts Options) *Server {
	opts = opts.withDefaults()
	s := &Server{mgr: mgr, router: mux.NewRouter()}
	s.setupRoutes()

	handler := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpSrv = &http.Server{
		Addr:         opts.Addr,
		Handler:      handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/conversations", s.createConversation).Methods(http.MethodPost)
	s.router.HandleFunc("/conversations", s.listConversations).Methods(http.MethodGet)

	conv := s.router.PathPrefix("/conversations/{id}").Subrouter()
	conv.HandleFunc("", s.getConversation).Methods(http.MethodGet)
	conv.HandleFunc("", s.closeConversation).Methods(http.MethodDelete)
	conv.HandleFunc("/messages", s.sendMessage).Methods(http.MethodPost)
	conv.HandleFunc("/confirm", s.confirm).Methods(http.MethodPost)
	conv.HandleFunc("/pause", s.pause).Methods(http.MethodPost)
	conv.HandleFunc("/resume", s.resume).Methods(http.MethodPost)
	conv.HandleFunc("/stop", s.stop).Methods(http.MethodPost)
	conv.HandleFunc("/events", s.listEvents).Methods(http.MethodGet)
	conv.HandleFunc("/events/stream", s.streamEvents).Methods(http.MethodGet)
}

// ServeHTTP lets a Server be mounted directly on an httptest.Server or
// another listener without going through Start/Shutdown.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpSrv.Handler.ServeHTTP(w, r)
}

// Start begins serving and blocks until the listener fails or Shutdown
// closes it, matching net/http.Server.ListenAndServe's contract.
func (s *Server) Start() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type createRequest struct {
	UserID         string            `json:"user_id"`
	Config         config.Config     `json:"config"`
	Inputs         map[string]string `json:"inputs"`
	InitialMessage string            `json:"initial_message"`
}

type createResponse struct {
	ID string `json:"id"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "invalid request body")
		return
	}
	id, err := s.mgr.Create(r.Context(), req.UserID, req.Config, req.Inputs, req.InitialMessage)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	filter := conversation.ListFilter{UserID: r.URL.Query().Get("user_id")}
	writeJSON(w, http.StatusOK, s.mgr.List(filter))
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	summary, err := s.mgr.Get(id)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) closeConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Close(r.Context(), id); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "invalid request body")
		return
	}
	if err := s.mgr.SendMessage(r.Context(), id, req.Text); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type confirmRequest struct {
	ActionID int64 `json:"action_id"`
	Accept   bool  `json:"accept"`
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, "invalid request body")
		return
	}
	if err := s.mgr.Confirm(r.Context(), id, req.ActionID, req.Accept); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Pause(r.Context(), id); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Resume(r.Context(), id); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Stop(r.Context(), id); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	start := parseInt64(r.URL.Query().Get("start"), 0)
	end := parseInt64(r.URL.Query().Get("end"), -1)

	events, err := s.mgr.Events(r.Context(), id, start, end, nil)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parseInt64(raw string, fallback int64) int64 {
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// streamEvents is the SSE-style long-poll endpoint: it attaches a
// one-shot subscriber, relays events as they arrive, and detaches on
// client disconnect, mirroring opencode's allEvents/sessionEvents
// handlers translated from its bespoke event bus onto
// conversation.Manager.AttachSubscriber/DetachSubscriber.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	start := parseInt64(r.URL.Query().Get("start"), 0)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errCodeInternal, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	subName := "frontdoor-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	events := make(chan *event.Event, 16)
	cb := eventstream.Callback(func(ev *event.Event) error {
		select {
		case events <- ev:
		case <-r.Context().Done():
		}
		return nil
	})

	if err := s.mgr.AttachSubscriber(r.Context(), id, subName, start, cb); err != nil {
		writeManagerError(w, err)
		return
	}
	defer s.mgr.DetachSubscriber(id, subName)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			w.Write([]byte("data: "))
			w.Write(raw)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

