// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// maxRequestBody bounds provisioning request bodies. The requests are
// a handful of identifiers; anything larger is not a valid request.
const maxRequestBody = 64 << 10

// HandlerConfig configures the provisioning HTTP API.
type HandlerConfig struct {
	// Engine executes the requests. Required.
	Engine *Engine

	// Secret is the bearer token callers must present. Required.
	Secret string

	// Logger receives request failures. Nil means discard.
	Logger *slog.Logger
}

// NewHandler returns the provisioning HTTP API:
//
//	POST /_matrix/provision/link
//	POST /_matrix/provision/unlink
//	GET  /_matrix/provision/listlinks/{roomId}
//
// The routes are also served without the /_matrix/provision prefix for
// deployments that mount the API under their own path.
func NewHandler(cfg HandlerConfig) http.Handler {
	if cfg.Engine == nil {
		panic("provision: HandlerConfig.Engine is required")
	}
	if cfg.Secret == "" {
		panic("provision: HandlerConfig.Secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	h := &handler{engine: cfg.Engine, secret: cfg.Secret, logger: logger}

	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/_matrix/provision"} {
		mux.HandleFunc("POST "+prefix+"/link", h.auth(h.link))
		mux.HandleFunc("POST "+prefix+"/unlink", h.auth(h.unlink))
		mux.HandleFunc("GET "+prefix+"/listlinks/{roomId}", h.auth(h.listLinks))
	}
	return mux
}

type handler struct {
	engine *Engine
	secret string
	logger *slog.Logger
}

// errorBody is the wire form of a provisioning failure.
type errorBody struct {
	Code    Code   `json:"errcode"`
	Message string `json:"error"`
	Content any    `json:"additionalContent,omitempty"`
}

// auth enforces the bearer token before dispatching to the handler.
func (h *handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
			h.writeError(w, r, newError(CodeBadToken, "missing or invalid access token"))
			return
		}
		next(w, r)
	}
}

func (h *handler) link(w http.ResponseWriter, r *http.Request) {
	var request LinkRequest
	if err := decodeBody(w, r, &request); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.Link(r.Context(), request); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *handler) unlink(w http.ResponseWriter, r *http.Request) {
	var request UnlinkRequest
	if err := decodeBody(w, r, &request); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.Unlink(r.Context(), request); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *handler) listLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.engine.ListLinks(r.Context(), r.PathValue("roomId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, links)
}

// decodeBody reads a JSON request body. Unknown fields are tolerated;
// syntactically invalid JSON is a bad value.
func decodeBody(w http.ResponseWriter, r *http.Request, into any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return newError(CodeBadValue, "malformed request body")
	}
	return nil
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var provisionErr *Error
	if !errors.As(err, &provisionErr) {
		provisionErr = infraError("internal error")
	}

	status := provisionErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	} else {
		h.logger.Info("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"errcode", string(provisionErr.Code),
		)
	}

	h.writeJSON(w, status, errorBody{
		Code:    provisionErr.Code,
		Message: provisionErr.Message,
		Content: provisionErr.Content,
	})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("writing response failed", "error", err)
	}
}
