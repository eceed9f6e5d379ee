package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// pendingMarker claims a key while the first request is still running.
const pendingMarker = "pending"

// Idem deduplicates writes that carry the same Idempotency-Key header.
// The first request claims the key in Redis and its response is snapshotted
// under the key once the handler finishes. Replays inside the TTL get the
// recorded response back instead of running the handler again, so a client
// that lost the original response can still recover it. A replay that lands
// while the first request is still in flight gets a 409.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

type idemRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Middleware applies idempotency to write endpoints. Requests without the
// header, and deployments without Redis, pass through untouched.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}

		// Scope the key to the endpoint so the same client key can be
		// reused across different operations.
		key := idemKey(r.Method, r.URL.Path, header)
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}

		claimed, err := i.R.SetNX(r.Context(), key, pendingMarker, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !claimed {
			i.replay(w, r, key)
			return
		}

		rec := &responseSnapshot{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// A server-side failure releases the claim so the client can retry
		// the same key; anything else is recorded for replay.
		if rec.status >= http.StatusInternalServerError {
			_ = i.R.Del(context.Background(), key).Err()
			return
		}
		snapshot, err := json.Marshal(idemRecord{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			return
		}
		_ = i.R.Set(context.Background(), key, snapshot, ttl).Err()
	})
}

func (i Idem) replay(w http.ResponseWriter, r *http.Request, key string) {
	stored, err := i.R.Get(r.Context(), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// claim expired or was released between SetNX and Get
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request, retry shortly", nil)
			return
		}
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
		return
	}
	if stored == pendingMarker {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "original request still in flight", nil)
		return
	}
	var rec idemRecord
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Idempotency-Replayed", "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// responseSnapshot tees the handler's response into a buffer so it can be
// stored for replay while still streaming to the client.
type responseSnapshot struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseSnapshot) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseSnapshot) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func idemKey(method, path, header string) string {
	sum := sha256.Sum256([]byte(method + "\x00" + path + "\x00" + header))
	return "idem:" + hex.EncodeToString(sum[:])
}
