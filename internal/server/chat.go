package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const maxChatBody = 1 << 20

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (models.ChatRequest, bool) {
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	resp, err := s.deps.Chat.Handle(r.Context(), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type tokenEvent struct {
	Text string `json:"text"`
}

type errorEvent struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// handleChatStream sends "token" events with partial answer text and ends with a
// "done" event carrying the same payload as POST /api/chat, or an "error" event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	stream, ok := newEventStream(w)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	resp, err := s.deps.Chat.HandleStream(r.Context(), req, func(chunk string) error {
		return stream.send("token", tokenEvent{Text: chunk})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("chat stream failed", zap.Error(err))
		_ = stream.send("error", errorEvent{Error: err.Error(), Status: statusFor(err)})
		return
	}
	_ = stream.send("done", resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" && r.ContentLength != 0 {
		var body struct {
			ClientID string `json:"client_id"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&body); err == nil {
			clientID = body.ClientID
		}
	}
	s.deps.Chat.Reset(clientID)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset", "client_id": clientID})
}

// handleSearch serves GET /api/search?q=&k=&mode=&fuzzy=&file=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	k := 0
	if v := q.Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "k must be a non-negative integer")
			return
		}
		k = n
	}
	mode := models.SearchMode(q.Get("mode"))
	switch mode {
	case "":
		mode = models.SearchKeyword
	case models.SearchKeyword, models.SearchSemantic, models.SearchHybrid:
	default:
		s.respondError(w, http.StatusBadRequest, "mode must be keyword, semantic or hybrid")
		return
	}
	opts := &keyword.SearchOptions{Filename: q.Get("file")}
	if fuzzy, err := strconv.ParseBool(q.Get("fuzzy")); err == nil && fuzzy {
		opts.FuzzyEnabled = true
		opts.Fuzziness = 1
	}

	resp, err := s.deps.Search.Search(r.Context(), query, k, mode, opts)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.Debug("search", zap.String("query", query), zap.String("mode", string(mode)), zap.Int("hits", len(resp.Hits)))
	s.respondJSON(w, http.StatusOK, resp)
}
