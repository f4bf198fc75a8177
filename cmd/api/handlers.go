package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/docqa/engine/answer"
	"github.com/WessleyAI/docqa/engine/docqa"
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/engine/retrieve"
)

// Service is the part of docqa.Service the handlers use.
type Service interface {
	ProcessDocument(ctx context.Context, path string) (docqa.Summary, error)
	Query(ctx context.Context, text string, useRerank bool) (retrieve.Results, error)
	Ask(ctx context.Context, text string) (answer.Answer, error)
	Save(dir string) (string, error)
	Clear(ctx context.Context) error
	Status() docqa.Status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Wrapped.Error())
	case errors.Is(err, domain.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		logger.Error(op+" failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

// ProcessRequest is the JSON body for POST /api/documents. Path is a file
// on the server.
type ProcessRequest struct {
	Path string `json:"path"`
	Save bool   `json:"save,omitempty"`
}

// ProcessResponse is the JSON response for POST /api/documents.
type ProcessResponse struct {
	docqa.Summary
	SavedTo string `json:"saved_to,omitempty"`
	Message string `json:"message"`
}

func handleProcess(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sum, err := svc.ProcessDocument(r.Context(), req.Path)
		if err != nil {
			writeServiceError(w, logger, "process document", err)
			return
		}
		resp := ProcessResponse{Summary: sum, Message: "File processed successfully"}
		if req.Save {
			path, err := svc.Save("")
			if err != nil {
				logger.Warn("save results failed", "err", err)
			}
			resp.SavedTo = path
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleClear(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Clear(r.Context()); err != nil {
			writeServiceError(w, logger, "clear document", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query     string `json:"query"`
	UseRerank bool   `json:"use_rerank"`
}

func handleSearch(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := svc.Query(r.Context(), req.Query, req.UseRerank)
		if err != nil {
			writeServiceError(w, logger, "search", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Query string `json:"query"`
}

func handleChat(svc Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ans, err := svc.Ask(r.Context(), req.Query)
		if err != nil {
			writeServiceError(w, logger, "chat", err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}
