package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rl1809/catalog/internal/adapter/metrics"
	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/core/service"
)

const (
	headerETag           = "ETag"
	headerIfMatch        = "If-Match"
	headerLocation       = "Location"
	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

var (
	errPreconditionRequired = errors.New("missing If-Match header")
	errBadRequestBody       = errors.New("invalid request body")
)

type ctxKey int

const requestIDKey ctxKey = iota

type HTTPHandler struct {
	productService   *service.ProductService
	reviewService    *service.ReviewService
	inventoryService *service.InventoryService
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(products *service.ProductService, reviews *service.ReviewService, inventory *service.InventoryService) *HTTPHandler {
	return &HTTPHandler{
		productService:   products,
		reviewService:    reviews,
		inventoryService: inventory,
	}
}

// Router wires every route behind the request id and access log middleware.
func (h *HTTPHandler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/product", h.instrument("product", "create", h.createProduct)).Methods(http.MethodPost)
	r.HandleFunc("/product/{id:[0-9]+}", h.instrument("product", "get", h.getProduct)).Methods(http.MethodGet)
	r.HandleFunc("/product/{id:[0-9]+}", h.instrument("product", "update", h.updateProduct)).Methods(http.MethodPut)
	r.HandleFunc("/product/{id:[0-9]+}", h.instrument("product", "delete", h.deleteProduct)).Methods(http.MethodDelete)

	r.HandleFunc("/review", h.instrument("review", "find", h.findReview)).Methods(http.MethodGet).Queries("productId", "{productId}")
	r.HandleFunc("/review", h.instrument("review", "create", h.createReview)).Methods(http.MethodPost)
	r.HandleFunc("/review/product/{productId:[0-9]+}/entry", h.instrument("review", "append", h.appendReviewForProduct)).Methods(http.MethodPost)
	r.HandleFunc("/review/{id}", h.instrument("review", "get", h.getReview)).Methods(http.MethodGet)
	r.HandleFunc("/review/{id}", h.instrument("review", "delete", h.deleteReview)).Methods(http.MethodDelete)
	r.HandleFunc("/review/{id}/entry", h.instrument("review", "append", h.appendReview)).Methods(http.MethodPost)

	r.HandleFunc("/inventory", h.instrument("inventory", "create", h.createInventory)).Methods(http.MethodPost)
	r.HandleFunc("/inventory/{id:[0-9]+}", h.instrument("inventory", "get", h.getInventory)).Methods(http.MethodGet)
	r.HandleFunc("/inventory/{id:[0-9]+}/purchaseRecord", h.instrument("inventory", "purchase", h.purchase)).Methods(http.MethodPost)
	r.HandleFunc("/inventory/{id:[0-9]+}/restock", h.instrument("inventory", "restock", h.restock)).Methods(http.MethodPost)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return requestIDMiddleware(logMiddleware(r))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// instrument records the operation outcome and turns a returned error into
// the matching status code.
func (h *HTTPHandler) instrument(resource, operation string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		err := fn(w, r)
		metrics.Observe(resource, operation, started, err)
		if err != nil {
			writeError(w, r, err)
		}
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errPreconditionRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, errBadRequestBody),
		errors.Is(err, domain.ErrMalformedToken),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateIdentity),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"request_id": requestID(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRecord sets the token and location headers shared by every versioned
// resource.
func writeRecord(w http.ResponseWriter, status int, token, location string, body interface{}) {
	w.Header().Set(headerETag, token)
	if location != "" {
		w.Header().Set(headerLocation, location)
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(errBadRequestBody, err.Error())
	}
	return nil
}

func requireIfMatch(r *http.Request) (string, error) {
	token := r.Header.Get(headerIfMatch)
	if token == "" {
		return "", errPreconditionRequired
	}
	return token, nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrNotFound, "%s %q", name, raw)
	}
	return n, nil
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL.String(),
			"status":     rec.status,
			"duration":   time.Since(started).String(),
			"request_id": requestID(r.Context()),
			"remoteAddr": r.RemoteAddr,
		}).Info("handled request")
	})
}
