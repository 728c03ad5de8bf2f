// Package devnode is a single-process stand-in for the external p2p node,
// used in development and integration tests. It serves the same HTTP JSON
// API, keeps each group's transaction log in memory, and delays confirmation
// of posted transactions to exercise the client's confirm-polling paths.
package devnode

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bookfeed/internal/logging"
	"bookfeed/internal/node"
)

// Options configures a dev node.
type Options struct {
	// Secret is the HS256 signing key for bearer tokens. Empty disables
	// authentication.
	Secret []byte

	// ConfirmDelay is how long a posted transaction stays invisible before
	// it is confirmed and becomes listable and retrievable.
	ConfirmDelay time.Duration

	Logger logging.Logger
}

type storedTrx struct {
	trx         node.Transaction
	confirmedAt time.Time
}

type Server struct {
	opts Options
	log  logging.Logger
	now  func() time.Time

	mu    sync.Mutex
	logs  map[string][]storedTrx
	acked map[string]bool
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.NewNoop()
	}
	return &Server{
		opts:  opts,
		log:   log.With("component", "devnode"),
		now:   time.Now,
		logs:  make(map[string][]storedTrx),
		acked: make(map[string]bool),
	}
}

// Token issues a bearer token accepted by the server's auth middleware.
func (s *Server) Token() (string, error) {
	if len(s.opts.Secret) == 0 {
		return "", nil
	}
	claims := jwt.RegisteredClaims{
		Subject:   "bookfeed",
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
}

// Handler returns the HTTP API. Routes and payload shapes match the real
// node so the same client works against both.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.auth)

	r.Post("/api/v1/group/content", s.postContent)
	r.Get("/api/v1/group/{groupID}/content", s.listContent)
	r.Get("/api/v1/trx/{groupID}/{trxID}", s.getTrx)
	r.Post("/api/v1/trx/ack", s.ackTrxs)

	return r
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.opts.Secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.opts.Secret, nil
		})
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type postContentRequest struct {
	Type   string        `json:"type"`
	Object *node.Content `json:"object"`
	Target struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"target"`
}

func (s *Server) postContent(w http.ResponseWriter, r *http.Request) {
	var req postContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type != "Add" || req.Target.Type != "Group" || req.Target.ID == "" || req.Object == nil {
		http.Error(w, "unsupported request", http.StatusBadRequest)
		return
	}

	data, err := node.EncodeContent(req.Object)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	trx := node.Transaction{
		ID:        uuid.NewString(),
		GroupID:   req.Target.ID,
		Sender:    "devnode",
		Data:      data,
		Timestamp: s.now().UnixNano(),
	}

	s.mu.Lock()
	s.logs[trx.GroupID] = append(s.logs[trx.GroupID], storedTrx{
		trx:         trx,
		confirmedAt: s.now().Add(s.opts.ConfirmDelay),
	})
	s.mu.Unlock()

	s.log.Debug(r.Context(), "transaction accepted", "group", trx.GroupID, "trx", trx.ID)
	writeJSON(w, map[string]string{"trx_id": trx.ID})
}

func (s *Server) listContent(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	num := 0
	if v := r.URL.Query().Get("num"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "bad num", http.StatusBadRequest)
			return
		}
		num = n
	}
	startTrx := r.URL.Query().Get("starttrx")
	includeStart := r.URL.Query().Get("includestarttrx") == "true"

	s.mu.Lock()
	entries := s.logs[groupID]
	now := s.now()

	start := 0
	if startTrx != "" {
		for i := range entries {
			if entries[i].trx.ID == startTrx {
				start = i
				if !includeStart {
					start = i + 1
				}
				break
			}
		}
	}

	out := make([]node.Transaction, 0, num)
	for _, e := range entries[start:] {
		if e.confirmedAt.After(now) {
			break // unconfirmed suffix; keep log-order contiguity
		}
		out = append(out, e.trx)
		if num > 0 && len(out) == num {
			break
		}
	}
	s.mu.Unlock()

	writeJSON(w, out)
}

func (s *Server) getTrx(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	trxID := chi.URLParam(r, "trxID")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.logs[groupID] {
		if e.trx.ID == trxID {
			if e.confirmedAt.After(s.now()) {
				break // pending, report as not found until confirmed
			}
			writeJSON(w, e.trx)
			return
		}
	}
	http.Error(w, "transaction not found", http.StatusNotFound)
}

type ackRequest struct {
	TrxIDs []string `json:"trx_ids"`
}

func (s *Server) ackTrxs(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	for _, id := range req.TrxIDs {
		s.acked[id] = true
	}
	s.mu.Unlock()

	writeJSON(w, map[string]int{"acked": len(req.TrxIDs)})
}

// Acked reports whether a transaction was acknowledged. Test helper.
func (s *Server) Acked(trxID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked[trxID]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
