package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/example/scheduling-core/internal/auth"
)

var cheapKeyParams = auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func newKeyRing(t *testing.T, module, key string) *auth.KeyRing {
	t.Helper()
	hash, err := auth.HashKey(key, cheapKeyParams)
	require.NoError(t, err)
	ring, err := auth.NewKeyRing(map[string]string{module: hash})
	require.NoError(t, err)
	return ring
}

func moduleEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		module, _ := ModuleFromContext(r.Context())
		_, _ = w.Write([]byte(module))
	})
}

func TestRequireModuleKey(t *testing.T) {
	t.Parallel()

	handler := RequireModuleKey(newKeyRing(t, "sales", "s3cret"), nil)(moduleEcho())

	tests := []struct {
		name     string
		path     string
		module   string
		key      string
		wantCode int
		wantBody string
	}{
		{name: "valid key", path: "/events", module: "sales", key: "s3cret", wantCode: http.StatusOK, wantBody: "sales"},
		{name: "missing headers", path: "/events", wantCode: http.StatusUnauthorized, wantBody: errMissingModuleKey.Error()},
		{name: "wrong key", path: "/events", module: "sales", key: "guess", wantCode: http.StatusUnauthorized, wantBody: errInvalidModuleKey.Error()},
		{name: "unknown module", path: "/events", module: "hr", key: "s3cret", wantCode: http.StatusUnauthorized, wantBody: errInvalidModuleKey.Error()},
		{name: "health stays open", path: "/healthz", wantCode: http.StatusOK, wantBody: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.module != "" {
				req.Header.Set(moduleHeader, tc.module)
			}
			if tc.key != "" {
				req.Header.Set(apiKeyHeader, tc.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode == http.StatusOK {
				assert.Equal(t, tc.wantBody, rec.Body.String())
				return
			}
			var resp errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.wantBody, resp.Message)
		})
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	handler := RateLimit(rate.Every(time.Hour), 1, nil)(moduleEcho())

	call := func(remote, module string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		req.RemoteAddr = remote
		if module != "" {
			req = req.WithContext(ContextWithModule(req.Context(), module))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1234", "").Code)

	limited := call("10.0.0.1:5678", "")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("10.0.0.2:1234", "").Code, "other hosts have their own bucket")
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1234", "sales").Code, "modules are keyed apart from hosts")
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.3:1234", "sales").Code, "module bucket follows the module")
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, LoggerFromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var completed map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &completed))
	assert.Equal(t, "request completed", completed["msg"])
	assert.Equal(t, float64(http.StatusTeapot), completed["status"])
	assert.Equal(t, "/events", completed["path"])
	assert.Equal(t, float64(1), completed["request_id"])
}
