// Package httpapi exposes the single-shot ask flow over HTTP for callers
// that cannot shell out to the CLI.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/logging"
	"github.com/davis7dotsh/betterctx/internal/query"
)

// Asker is the slice of the session orchestrator the API needs.
type Asker interface {
	Ask(ctx context.Context, repos []string, question string) (string, error)
}

// askRequest accepts the current shape and the legacy single-repo shape.
type askRequest struct {
	Repos    []string `json:"repos"`
	Question string   `json:"question"`

	// Tech is the legacy alias for a single repository.
	Tech string `json:"tech"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server wires the ask endpoint onto a router.
type Server struct {
	asker  Asker
	logger *logging.Logger
}

// NewServer creates the HTTP wrapper around an orchestrator.
func NewServer(asker Asker, logger *logging.Logger) *Server {
	return &Server{asker: asker, logger: logger}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)

	return r
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})

		return
	}

	repos := req.Repos
	if len(repos) == 0 && req.Tech != "" {
		repos = []string{req.Tech}
	}

	parsed := query.Parse(req.Question)
	repos = query.Merge(repos, parsed.Repos)

	if strings.TrimSpace(parsed.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})

		return
	}

	if len(repos) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "at least one repository is required"})

		return
	}

	answer, err := s.asker.Ask(r.Context(), repos, parsed.Prompt)
	if err != nil {
		status := http.StatusInternalServerError

		if errors.Is(err, cerrors.UnknownResource) || errors.Is(err, cerrors.EmptyRepoSet) {
			status = http.StatusBadRequest
		}

		if s.logger != nil {
			s.logger.Error("ask failed", "repos", strings.Join(repos, ","), "error", err)
		}

		writeJSON(w, status, errorResponse{Error: err.Error()})

		return
	}

	if s.logger != nil {
		s.logger.Info("ask answered", "repos", strings.Join(repos, ","), "duration", time.Since(start).Round(time.Millisecond))
	}

	writeJSON(w, http.StatusOK, askResponse{Answer: answer})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
