package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/medimage-insight/internal/application/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/domain/history"
	"github.com/bryanwahyu/medimage-insight/internal/logger"
	"github.com/bryanwahyu/medimage-insight/internal/middleware"
)

const defaultMaxBody = 20 << 20

type Options struct {
	// Demo, when set, serves POST /v1/demo/analyze.
	Demo           *appanalysis.Service
	Checkers       map[string]middleware.HealthChecker
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	MaxBodyBytes   int64
}

type Router struct {
	svc  *appanalysis.Service
	demo *appanalysis.Service
}

func NewRouter(svc *appanalysis.Service, opts Options) http.Handler {
	r := &Router{svc: svc, demo: opts.Demo}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		MaxAge:         300,
	}))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})
	mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.BearerToken)
		rt.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

		rt.Post("/analyze", r.wrap(r.handleAnalyze(r.svc)))
		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Get("/history/{id}", r.wrap(r.handleRecord))
		if r.demo != nil {
			rt.Post("/demo/analyze", r.wrap(r.handleAnalyze(r.demo)))
		}
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, body := errorResponse(err)
			if status >= http.StatusInternalServerError {
				logger.WithError(err).WithField("path", req.URL.Path).Error("request failed")
			}
			writeJSON(w, status, body)
		}
	}
}

func errorResponse(err error) (int, errorBody) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"}
	}
	if errors.Is(err, history.ErrNotFound) {
		return http.StatusNotFound, errorBody{Error: "not found"}
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, errorBody{Error: err.Error()}
	}
	body := errorBody{Error: de.Message, Kind: string(de.Kind)}
	switch de.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest, body
	case domain.KindUnauthorized:
		return http.StatusUnauthorized, body
	case domain.KindModel:
		if de.StatusCode != 0 {
			body.Error = fmt.Sprintf("%s: %d %s - %s", de.Message, de.StatusCode, http.StatusText(de.StatusCode), de.Body)
		} else if de.Cause != nil {
			body.Error = de.Message + ": " + de.Cause.Error()
		}
		if errors.Is(err, ai.ErrQuotaExceeded) {
			return http.StatusTooManyRequests, body
		}
		return http.StatusBadGateway, body
	case domain.KindUnparseable:
		if de.Cause != nil {
			body.Error = de.Cause.Error()
		}
		return http.StatusUnprocessableEntity, body
	}
	// configuration and persistence problems are ours, not the caller's
	return http.StatusInternalServerError, body
}

type analyzeRequest struct {
	ImageBase64 string `json:"imageBase64"`
	ImageType   string `json:"imageType"`
	Shape       string `json:"shape,omitempty"`
}

// POST /v1/analyze
// Body: {"imageBase64": "<base64 or data URL>", "imageType": "image/png"}
func (r *Router) handleAnalyze(svc *appanalysis.Service) handlerFunc {
	return func(w http.ResponseWriter, req *http.Request) error {
		var body analyzeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return err
			}
			return domain.Validation("invalid JSON body")
		}

		out, err := svc.Analyze(req.Context(), appanalysis.AnalyzeCommand{
			ImageBase64:  body.ImageBase64,
			ImageType:    middleware.SanitizeString(body.ImageType),
			SessionToken: middleware.GetSessionToken(req.Context()),
			Shape:        body.Shape,
		})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": out.Payload()})
		return nil
	}
}

// GET /v1/history?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.svc.History(req.Context(), middleware.GetSessionToken(req.Context()),
		middleware.ValidatePage(page), middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/history/{id}
func (r *Router) handleRecord(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return domain.Validation(err.Error())
	}

	rec, err := r.svc.Record(req.Context(), middleware.GetSessionToken(req.Context()), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": rec})
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("failed to encode response")
	}
}
