package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/Hoang7604119/mmostore-sub003/internal/api/problem"
	"github.com/Hoang7604119/mmostore-sub003/internal/idempotency"
	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"go.uber.org/zap"
)

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// IdempotencyMiddleware enforces the Idempotency-Key contract on mutating
// routes: the first request with a key executes and records its response, any
// retry with the same key and body replays that response verbatim.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				observability.IncrementIdempotencyEvent("missing_key")
				problem.Write(w, r, http.StatusBadRequest, problem.Type("idempotency/missing-key"), http.StatusText(http.StatusBadRequest), "Idempotency-Key header is required")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.Type("request/invalid-body"), http.StatusText(http.StatusBadRequest), "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
			reqHash := requestFingerprint(r.Method, r.URL.Path, body)

			proceed := resolveKey(w, r, store, logger, key, reqHash)
			if !proceed {
				return
			}

			rec := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			finalize(r, store, logger, key, reqHash, rec)
		})
	}
}

// resolveKey replays, reserves or rejects. It reports whether the wrapped
// handler should run; when false a response has already been written.
func resolveKey(w http.ResponseWriter, r *http.Request, store *idempotency.Store, logger *zap.Logger, key, reqHash string) bool {
	rec, err := store.Lookup(r.Context(), key, reqHash)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay")
		replay(w, rec)
		return false
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), http.StatusText(http.StatusConflict), "conflicting idempotency key")
		return false
	case errors.Is(err, idempotency.ErrInProgress):
		return awaitAndReplay(w, r, store, logger, key, reqHash)
	case !errors.Is(err, idempotency.ErrNotFound):
		observability.IncrementIdempotencyEvent("lookup_error")
		logger.Warn("idempotency lookup failed", zap.Error(err))
	}

	reserved, err := store.Reserve(r.Context(), key, reqHash, r.Method, r.URL.Path)
	if err != nil {
		observability.IncrementIdempotencyEvent("reserve_error")
		logger.Error("idempotency reserve failed", zap.Error(err))
		problem.Write(w, r, http.StatusInternalServerError, problem.Type("idempotency/unavailable"), http.StatusText(http.StatusInternalServerError), "idempotency unavailable")
		return false
	}
	if !reserved {
		return awaitAndReplay(w, r, store, logger, key, reqHash)
	}
	observability.IncrementIdempotencyEvent("reserved")
	return true
}

// awaitAndReplay handles the concurrent-retry race: another request holds the
// reservation, so wait briefly for its result instead of double-executing.
func awaitAndReplay(w http.ResponseWriter, r *http.Request, store *idempotency.Store, logger *zap.Logger, key, reqHash string) bool {
	rec, err := store.WaitForCompletion(r.Context(), key, reqHash)
	if err == nil {
		observability.IncrementIdempotencyEvent("replay_after_wait")
		replay(w, rec)
		return false
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	logger.Warn("idempotency wait failed", zap.Error(err))
	problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), http.StatusText(http.StatusConflict), "idempotency processing")
	return false
}

func finalize(r *http.Request, store *idempotency.Store, logger *zap.Logger, key, reqHash string, rec *bodyRecorder) {
	contentType := rec.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	if rec.status == 0 {
		rec.status = http.StatusOK
	}

	if _, err := store.Finalize(r.Context(), key, reqHash, rec.status, rec.body.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", key))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

func requestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func replay(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("X-Idempotent-Replay", rec.ServedBy)
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
