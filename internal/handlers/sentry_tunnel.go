package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ytpm/backend/internal/config"
)

const maxEnvelopeBytes = 1 << 20

// SentryTunnelHandler forwards Sentry envelopes sent by the web client to
// Sentry's ingest API.
type SentryTunnelHandler struct {
	dsn    string
	client *http.Client
}

// NewSentryTunnelHandler creates a SentryTunnelHandler accepting envelopes for
// the configured frontend DSN.
func NewSentryTunnelHandler(cfg *config.Config) *SentryTunnelHandler {
	return &SentryTunnelHandler{dsn: cfg.SentryDSNFrontend, client: &http.Client{Timeout: 10 * time.Second}}
}

// Tunnel reads a Sentry envelope from the request body, validates the DSN
// matches the configured frontend DSN, and forwards it to Sentry's ingest API.
func (h *SentryTunnelHandler) Tunnel(w http.ResponseWriter, r *http.Request) {
	if h.dsn == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ingestURL, status := h.ingestURL(body)
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, ingestURL, bytes.NewReader(body))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create sentry tunnel request", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/x-sentry-envelope")

	resp, err := h.client.Do(req)
	if err != nil {
		slog.WarnContext(r.Context(), "failed to forward sentry envelope", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.WriteHeader(resp.StatusCode)
}

// ingestURL reads the DSN from the envelope header line and maps it to the
// project's envelope endpoint. Only the configured DSN is accepted.
func (h *SentryTunnelHandler) ingestURL(envelope []byte) (string, int) {
	line, _, _ := bytes.Cut(envelope, []byte("\n"))

	var header struct {
		DSN string `json:"dsn"`
	}
	if err := json.Unmarshal(line, &header); err != nil {
		return "", http.StatusBadRequest
	}
	if header.DSN != h.dsn {
		return "", http.StatusUnauthorized
	}

	// https://<key>@<host>/<project_id>
	dsnURL, err := url.Parse(header.DSN)
	if err != nil || dsnURL.Host == "" {
		return "", http.StatusBadRequest
	}
	projectID := strings.TrimPrefix(dsnURL.Path, "/")
	return dsnURL.Scheme + "://" + dsnURL.Host + "/api/" + projectID + "/envelope/", http.StatusOK
}
