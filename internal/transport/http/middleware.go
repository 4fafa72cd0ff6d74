package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Noah-Huppert/wallet-service/internal/auth"
	"github.com/Noah-Huppert/wallet-service/internal/metrics"
)

// instrument logs each request, measures its duration, and converts panics
// into the generic internal error response. Wraps outside the auth
// middleware; the authorized subject is reported back through the context's
// subject recorder.
func instrument(mc *metrics.Client, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(auth.WithSubjectRecorder(r.Context()))

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.UserAgent())

			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("request handler panic",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec)
					mc.CountInternalError(r.Method, r.URL.Path)
					writeJSON(ww, http.StatusInternalServerError,
						map[string]string{"error": "an internal error has occurred"})
				}

				mc.ObserveRequest(r.Method, r.URL.Path,
					fmt.Sprintf("%d", ww.Status()),
					auth.RecordedSubject(r.Context()),
					time.Since(start))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
