package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rl1809/armory-atlas/internal/core/domain"
	"github.com/rl1809/armory-atlas/internal/core/service"
)

type HTTPHandler struct {
	lending *service.LendingService
	catalog *service.CatalogService
	guard   *service.RequestGuard
	logger  *zap.Logger
}

type registerItemRequest struct {
	ProductID string   `json:"product_id"`
	Size      string   `json:"size"`
	Condition *float64 `json:"condition,omitempty"`
}

func NewHTTPHandler(lending *service.LendingService, catalog *service.CatalogService, guard *service.RequestGuard, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{lending: lending, catalog: catalog, guard: guard, logger: logger}
}

// Router returns a router with every route registered.
func (h *HTTPHandler) Router() *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/items", h.ListAvailableItems).Methods(http.MethodGet)
	api.HandleFunc("/items/search", h.SearchItems).Methods(http.MethodGet)
	api.HandleFunc("/items/random", h.RandomItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items", h.RegisterItem).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/return", h.ReturnItem).Methods(http.MethodPost)

	api.HandleFunc("/stock/{product}", h.Stock).Methods(http.MethodGet)
	api.HandleFunc("/stock/{product}/{size}", h.Stock).Methods(http.MethodGet)

	api.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users", h.RegisterUser).Methods(http.MethodPost)
	api.HandleFunc("/users/random", h.RandomUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{ssn}/loans", h.LoanHistory).Methods(http.MethodGet)
	api.HandleFunc("/stats/borrows", h.BorrowCounts).Methods(http.MethodGet)

	api.HandleFunc("/products", h.RegisterProduct).Methods(http.MethodPost)

	api.HandleFunc("/loans", h.ListLoans).Methods(http.MethodGet)
	api.HandleFunc("/loans", h.Borrow).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/return", h.ReturnLoan).Methods(http.MethodPost)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListAvailableItems(w http.ResponseWriter, r *http.Request) {
	rows, err := h.catalog.ListAvailableItems(r.Context())
	h.respond(w, r, http.StatusOK, rows, err)
}

func (h *HTTPHandler) SearchItems(w http.ResponseWriter, r *http.Request) {
	rows, err := h.catalog.SearchItems(r.Context(), r.URL.Query().Get("q"))
	h.respond(w, r, http.StatusOK, rows, err)
}

func (h *HTTPHandler) RandomItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.RandomAvailableItem(r.Context())
	h.respond(w, r, http.StatusOK, item, err)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.GetItem(r.Context(), mux.Vars(r)["id"])
	h.respond(w, r, http.StatusOK, item, err)
}

func (h *HTTPHandler) Stock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req := StockRequest{ProductID: vars["product"], Size: vars["size"]}

	n, err := h.catalog.StockForProductSize(r.Context(), req.ProductID, req.Size)
	h.respond(w, r, http.StatusOK, StockReply{ProductID: req.ProductID, Size: req.Size, Quantity: n}, err)
}

func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.catalog.ListUsers(r.Context())
	h.respond(w, r, http.StatusOK, users, err)
}

func (h *HTTPHandler) RandomUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.catalog.RandomUser(r.Context())
	h.respond(w, r, http.StatusOK, user, err)
}

func (h *HTTPHandler) LoanHistory(w http.ResponseWriter, r *http.Request) {
	loans, err := h.catalog.LoanHistoryForUser(r.Context(), mux.Vars(r)["ssn"])
	h.respond(w, r, http.StatusOK, loans, err)
}

func (h *HTTPHandler) BorrowCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.catalog.BorrowCountsByUser(r.Context())
	h.respond(w, r, http.StatusOK, counts, err)
}

func (h *HTTPHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorReply{Error: "limit must be an integer"})
			return
		}
		limit = n
	}
	loans, err := h.catalog.ListLoans(r.Context(), limit)
	h.respond(w, r, http.StatusOK, loans, err)
}

func (h *HTTPHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if !decode(w, r, &user) {
		return
	}
	stored, err := h.lending.RegisterUser(r.Context(), user)
	h.respond(w, r, http.StatusCreated, stored, err)
}

func (h *HTTPHandler) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if !decode(w, r, &product) {
		return
	}
	stored, err := h.lending.RegisterProduct(r.Context(), product)
	h.respond(w, r, http.StatusCreated, stored, err)
}

func (h *HTTPHandler) RegisterItem(w http.ResponseWriter, r *http.Request) {
	var req registerItemRequest
	if !decode(w, r, &req) {
		return
	}
	condition := -1.0
	if req.Condition != nil {
		condition = *req.Condition
	}
	item, err := h.lending.RegisterItem(r.Context(), req.ProductID, req.Size, condition)
	h.respond(w, r, http.StatusCreated, item, err)
}

func (h *HTTPHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if !decode(w, r, &req) {
		return
	}
	loan, err := borrow(r.Context(), h.guard, h.lending, req)
	h.respond(w, r, http.StatusCreated, LoanReply{Loan: loan}, err)
}

func (h *HTTPHandler) ReturnItem(w http.ResponseWriter, r *http.Request) {
	h.giveBack(w, r, ReturnRequest{ItemID: mux.Vars(r)["id"]})
}

func (h *HTTPHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	h.giveBack(w, r, ReturnRequest{LoanID: mux.Vars(r)["id"]})
}

// giveBack reads the optional body (request_id, return_date) on top of the path target.
// An empty body, chunked or not, means no options.
func (h *HTTPHandler) giveBack(w http.ResponseWriter, r *http.Request, target ReturnRequest) {
	var body ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: "invalid request body"})
		return
	}
	target.RequestID = body.RequestID
	target.ReturnDate = body.ReturnDate

	loan, err := giveBack(r.Context(), h.guard, h.lending, target)
	h.respond(w, r, http.StatusOK, LoanReply{Loan: loan}, err)
}

func (h *HTTPHandler) respond(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err == nil {
		writeJSON(w, status, data)
		return
	}

	status = statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, status, errorReply{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorReply{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateKey),
		errors.Is(err, domain.ErrItemAlreadyBorrowed),
		errors.Is(err, domain.ErrNoActiveLoan),
		errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
