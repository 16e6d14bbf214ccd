package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/rs/cors"
)

func NewRouter(handler *Handler, logger *logging.Logger, corsAllowedOrigins []string) http.Handler {
	logger = logging.OrDefault(logger).Named("http")

	router := mux.NewRouter()
	router.HandleFunc("/healthz", handler.Healthz).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/credentials", handler.ListCredentials).Methods(http.MethodGet)
	api.HandleFunc("/matches/active", handler.ListActiveMatches).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{job}/run", handler.RunJob).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept"},
		MaxAge:         600,
	})

	return RequestTracing(RequestLogging(logger, c.Handler(recoverPanic(logger, router))))
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(ctx, "panic recovered", "panic", rec)
				writeInternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
