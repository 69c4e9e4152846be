package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-identity/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

var _ = Describe("RateLimiter", func() {
	It("limits each client IP separately", func() {
		limiter := NewRateLimiter(1, 2, quietLogger())
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		limiter.now = func() time.Time { return now }
		h := limiter.Middleware(ok)

		hit := func(ip string) int {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			req.RemoteAddr = ip + ":1234"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec.Code
		}

		Expect(hit("10.0.0.1")).To(Equal(http.StatusOK))
		Expect(hit("10.0.0.1")).To(Equal(http.StatusOK))
		Expect(hit("10.0.0.1")).To(Equal(http.StatusTooManyRequests))
		Expect(hit("10.0.0.2")).To(Equal(http.StatusOK))

		now = now.Add(time.Second)
		Expect(hit("10.0.0.1")).To(Equal(http.StatusOK))
	})

	It("sweeps idle visitors", func() {
		limiter := NewRateLimiter(1, 1, quietLogger())
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		limiter.now = func() time.Time { return now }

		limiter.allow("a")
		now = now.Add(limiterIdleTTL + time.Minute)
		limiter.allow("b")

		Expect(limiter.visitors).To(HaveKey("b"))
		Expect(limiter.visitors).NotTo(HaveKey("a"))
	})

	It("ignores X-Forwarded-For when keying clients", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		Expect(clientIP(req)).To(Equal("192.0.2.1"))
	})

	It("does not reset the budget when the client rotates X-Forwarded-For", func() {
		h := NewRateLimiter(0.001, 1, quietLogger()).Middleware(ok)

		allowed := 0
		for i := 0; i < 50; i++ {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code == http.StatusOK {
				allowed++
			}
		}
		Expect(allowed).To(Equal(1))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("answers 500 without leaking the panic", func() {
		h := RecoveryMiddleware(quietLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("db password is hunter2")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).NotTo(ContainSubstring("hunter2"))
		Expect(rec.Body.String()).To(ContainSubstring("INTERNAL_ERROR"))
	})
})

var _ = Describe("CORS", func() {
	h := CORS("https://app.example.com, https://admin.example.com/")(ok)

	It("echoes allowed origins only", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://admin.example.com"))

		req.Header.Set("Origin", "https://evil.example.com")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("short circuits preflight", func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})
})

var _ = Describe("RequestID", func() {
	It("keeps the caller's trace id and attaches a logger", func() {
		var hasLogger bool
		h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			_, hasLogger = logger.Lookup(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceHeader, "trace-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		Expect(rec.Header().Get(TraceHeader)).To(Equal("trace-1"))
		Expect(hasLogger).To(BeTrue())
	})

	It("mints one when absent", func() {
		rec := httptest.NewRecorder()
		RequestID(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Header().Get(TraceHeader)).NotTo(BeEmpty())
	})
})

var _ = Describe("LoggingMiddleware", func() {
	It("masks credentials in bodies and headers", func() {
		var buf bytes.Buffer
		lg := slog.New(slog.NewJSONHandler(&buf, nil))

		h := LoggingMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "jwt-value"})
		}))

		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"bob@example.com","password":"Str0ng!Pass"}`))
		req.Header.Set("Authorization", "Bearer jwt-value")
		h.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		Expect(out).To(ContainSubstring("bob@example.com"))
		Expect(out).NotTo(ContainSubstring("Str0ng!Pass"))
		Expect(out).NotTo(ContainSubstring("jwt-value"))
	})

	It("leaves the request body readable downstream", func() {
		var seen string
		h := LoggingMiddleware(quietLogger())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			seen = body["name"]
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"acme"}`)))
		Expect(seen).To(Equal("acme"))
	})
})
