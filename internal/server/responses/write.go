package responses

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	ferrors "git.home.luguber.info/inful/ordprovider/internal/foundation/errors"
	"git.home.luguber.info/inful/ordprovider/internal/logfields"
)

// WriteJSON serializes v and writes it with the given status. Encoding runs
// into an intermediate buffer so a marshalling failure never sends a partial
// response, and so the body hash for the ETag covers exactly what is sent.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return WriteRaw(w, r, status, "application/json; charset=utf-8", buf.Bytes())
}

// WriteRaw writes body with a strong ETag on 200 responses. A matching
// If-None-Match short-circuits to 304 without a body.
func WriteRaw(w http.ResponseWriter, r *http.Request, status int, contentType string, body []byte) error {
	if status == http.StatusOK {
		etag := strongETag(body)
		w.Header().Set("ETag", etag)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed writing response body", logfields.Error(err))
		return err
	}
	return nil
}

// WriteError writes the classified-error envelope for err.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	errorAdapter.WriteErrorResponse(w, r, err)
}

var errorAdapter = ferrors.NewHTTPErrorAdapter(nil)

func strongETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// etagMatches implements If-None-Match per RFC 9110: a comma-separated list
// of entity tags or "*". Weak-prefixed tags compare by their opaque value.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
