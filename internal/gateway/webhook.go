package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/meetclaw/internal/bus"
	"github.com/stellarlinkco/meetclaw/internal/store"
)

const (
	eventTranscriptionCompleted = "Transcription completed"
	signatureHeader             = "X-Hub-Signature"
	fetchTimeout                = 60 * time.Second
)

// verifySignature checks the hex HMAC-SHA256 of body. An optional "sha256="
// prefix is accepted.
func verifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (g *Gateway) handleFirefliesWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body failed"})
		return
	}

	if secret := g.cfg.Gateway.WebhookSecret; secret != "" {
		if !verifySignature(secret, body, r.Header.Get(signatureHeader)) {
			log.Printf("[gateway] webhook rejected: invalid signature")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
			return
		}
	}
	if !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	eventType := gjson.GetBytes(body, "eventType").String()
	meetingID := gjson.GetBytes(body, "meetingId").String()
	log.Printf("[gateway] webhook event %q meeting=%s", eventType, meetingID)

	if eventType != eventTranscriptionCompleted {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Event acknowledged"})
		return
	}
	if meetingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "meetingId is required"})
		return
	}
	if g.fetcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Transcript source is not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), fetchTimeout)
	defer cancel()
	in, err := g.fetcher.Transcript(ctx, meetingID)
	if err != nil {
		log.Printf("[gateway] webhook fetch %s: %v", meetingID, err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if in.ID == "" {
		in.ID = meetingID
	}

	switch err := g.submit(r.Context(), *in, bus.SourceWebhook); {
	case errors.Is(err, store.ErrAlreadyProcessing):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "Meeting is already being processed"})
		return
	case err != nil:
		log.Printf("[gateway] webhook submit %s: %v", meetingID, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Transcript queued for processing",
		"meetingId": meetingID,
	})
}
