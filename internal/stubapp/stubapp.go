// Package stubapp serves an in-memory imitation of the slice of the Jarvis
// API this suite observes: fiche/thread/knowledge CRUD, the admin database
// reset, the SSE chat stream, and a WebSocket endpoint. It exists so the
// helper layer is testable without the real application and as a local dev
// target for the CLI. It deliberately implements no application semantics
// beyond what the tests assert on.
//
// All state is partitioned by the worker isolation header, mirroring the
// real backend's per-worker logical databases.
package stubapp

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zerg-ai/jarvis-e2e/internal/sse"
	"github.com/zerg-ai/jarvis-e2e/internal/worker"
)

// Server is the stub application.
type Server struct {
	mu         sync.Mutex
	partitions map[string]*partition

	// failResets makes the next N reset calls return 500, for exercising
	// the client's retry path.
	failResets atomic.Int32

	// ingestDelay is how long a knowledge source stays "ingesting"
	// before flipping to "ready".
	ingestDelay time.Duration

	upgrader websocket.Upgrader

	router chi.Router
}

// partition is one worker's isolated data set.
type partition struct {
	fiches    map[string]ficheRecord
	threads   map[string]threadRecord
	messages  map[string][]messageRecord
	knowledge map[string]knowledgeRecord
	workflows map[string]workflowRecord
}

type ficheRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
}

type threadRecord struct {
	ID      string `json:"id"`
	FicheID string `json:"fiche_id"`
	Title   string `json:"title"`
}

type messageRecord struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Role     string `json:"role"`
	Content  string `json:"content"`
}

type knowledgeRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url,omitempty"`
	Status    string    `json:"status"`
	createdAt time.Time
}

type workflowRecord struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Nodes json.RawMessage `json:"nodes"`
	Edges json.RawMessage `json:"edges"`
}

// Option configures the stub server.
type Option func(*Server)

// WithIngestDelay sets how long knowledge sources take to become ready.
func WithIngestDelay(d time.Duration) Option {
	return func(s *Server) { s.ingestDelay = d }
}

// New builds the stub server.
func New(opts ...Option) *Server {
	s := &Server{
		partitions:  make(map[string]*partition),
		ingestDelay: 200 * time.Millisecond,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/admin/reset-database", s.handleReset)
	r.Post("/api/admin/reset-database", s.handleReset)

	r.Route("/api", func(r chi.Router) {
		r.Route("/fiches", func(r chi.Router) {
			r.Get("/", s.handleListFiches)
			r.Post("/", s.handleCreateFiche)
			r.Get("/{id}", s.handleGetFiche)
			r.Delete("/{id}", s.handleDeleteFiche)
		})
		r.Post("/threads", s.handleCreateThread)
		r.Get("/threads/{id}/messages", s.handleListMessages)
		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", s.handleListKnowledge)
			r.Post("/", s.handleCreateKnowledge)
			r.Get("/{id}", s.handleGetKnowledge)
		})
		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.handleListWorkflows)
			r.Post("/", s.handleCreateWorkflow)
			r.Get("/{id}", s.handleGetWorkflow)
		})
		r.Post("/session", s.handleLogin)
		r.Delete("/session", s.handleLogout)
		r.Post("/jarvis/chat", s.handleChat)
		r.Post("/oikos/chat", s.handleChat)
	})

	r.Get("/ws/events", s.handleWebSocket)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNextResets makes the next n reset calls return 500.
func (s *Server) FailNextResets(n int) {
	s.failResets.Store(int32(n))
}

// part returns (creating if needed) the partition for the request's worker.
// Requests without the isolation header share the "default" partition, the
// same behavior the real backend has for manual curl poking.
func (s *Server) part(r *http.Request) *partition {
	id := r.Header.Get(worker.Header)
	if id == "" {
		id = "default"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[id]
	if !ok {
		p = &partition{
			fiches:    make(map[string]ficheRecord),
			threads:   make(map[string]threadRecord),
			messages:  make(map[string][]messageRecord),
			knowledge: make(map[string]knowledgeRecord),
			workflows: make(map[string]workflowRecord),
		}
		s.partitions[id] = p
	}
	return p
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.failResets.Load() > 0 {
		s.failResets.Add(-1)
		http.Error(w, "database locked", http.StatusInternalServerError)
		return
	}

	var req struct {
		ResetType string `json:"reset_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResetType != "clear_data" {
		http.Error(w, "expected reset_type=clear_data", http.StatusBadRequest)
		return
	}

	id := r.Header.Get(worker.Header)
	if id == "" {
		id = "default"
	}
	s.mu.Lock()
	delete(s.partitions, id)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleCreateFiche(w http.ResponseWriter, r *http.Request) {
	var in ficheRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Name == "" {
		http.Error(w, "name is required", http.StatusUnprocessableEntity)
		return
	}
	in.ID = uuid.NewString()
	in.CreatedAt = time.Now().UTC()

	p := s.part(r)
	s.mu.Lock()
	p.fiches[in.ID] = in
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleListFiches(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	s.mu.Lock()
	out := make([]ficheRecord, 0, len(p.fiches))
	for _, f := range p.fiches {
		out = append(out, f)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFiche(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	s.mu.Lock()
	f, ok := p.fiches[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "fiche not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteFiche(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := p.fiches[id]
	delete(p.fiches, id)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "fiche not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var in threadRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p := s.part(r)
	s.mu.Lock()
	if _, ok := p.fiches[in.FicheID]; !ok {
		s.mu.Unlock()
		http.Error(w, "fiche not found", http.StatusUnprocessableEntity)
		return
	}
	in.ID = uuid.NewString()
	p.threads[in.ID] = in
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	s.mu.Lock()
	msgs := append([]messageRecord(nil), p.messages[chi.URLParam(r, "id")]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var in knowledgeRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.ID = uuid.NewString()
	in.Status = "pending"
	in.createdAt = time.Now()

	p := s.part(r)
	s.mu.Lock()
	p.knowledge[in.ID] = in
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	s.mu.Lock()
	out := make([]knowledgeRecord, 0, len(p.knowledge))
	for _, k := range p.knowledge {
		if k.Status != "ready" && time.Since(k.createdAt) >= s.ingestDelay {
			k.Status = "ready"
			p.knowledge[k.ID] = k
		}
		out = append(out, k)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	s.mu.Lock()
	k, ok := p.knowledge[chi.URLParam(r, "id")]
	if ok && k.Status != "ready" && time.Since(k.createdAt) >= s.ingestDelay {
		k.Status = "ready"
		p.knowledge[k.ID] = k
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "knowledge source not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var in workflowRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	in.ID = uuid.NewString()
	p := s.part(r)
	s.mu.Lock()
	p.workflows[in.ID] = in
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	s.mu.Lock()
	out := make([]workflowRecord, 0, len(p.workflows))
	for _, wf := range p.workflows {
		out = append(out, wf)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	p := s.part(r)
	s.mu.Lock()
	wf, ok := p.workflows[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// Dev credentials the real backend seeds for its test fixtures.
const (
	devEmail    = "e2e@zerg.test"
	devPassword = "e2e-password"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Email != devEmail || in.Password != devPassword {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token": "tok-" + uuid.NewString()[:8],
		"email": in.Email,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleChat emits the canonical supervisor/worker event sequence as an SSE
// stream, echoing the correlation id back in every payload.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message             string `json:"message"`
		MessageID           string `json:"message_id"`
		Model               string `json:"model"`
		ClientCorrelationID string `json:"client_correlation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" || req.MessageID == "" {
		http.Error(w, "message and message_id are required", http.StatusUnprocessableEntity)
		return
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	workerID := "wk-" + uuid.NewString()[:8]
	frames := []sse.Envelope{
		{Event: sse.EventWorkerSpawned, Payload: mustJSON(map[string]string{
			"worker_id":             workerID,
			"client_correlation_id": req.ClientCorrelationID,
		})},
		{Event: sse.EventToolCall, Payload: mustJSON(map[string]string{
			"worker_id": workerID,
			"tool":      "search",
		})},
		{Event: sse.EventWorkerComplete, Payload: mustJSON(map[string]string{
			"worker_id":             workerID,
			"client_correlation_id": req.ClientCorrelationID,
		})},
		{Event: sse.EventSupervisorComplete, Payload: mustJSON(map[string]string{
			"message_id":            req.MessageID,
			"client_correlation_id": req.ClientCorrelationID,
			"answer":                "stub answer: " + req.Message,
		})},
	}

	for _, frame := range frames {
		data, _ := json.Marshal(frame)
		fmt.Fprintf(w, "data: %s\n\n", data)
		fl.Flush()
		select {
		case <-r.Context().Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// handleWebSocket upgrades and immediately reports the worker_id query
// parameter it saw, so tests can verify the browser-side URL rewrite.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	hello := map[string]string{
		"type":      "hello",
		"worker_id": r.URL.Query().Get(worker.QueryParam),
	}
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	// Echo until the client goes away.
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
