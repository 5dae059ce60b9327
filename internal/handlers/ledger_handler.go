package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fibreville/tigris/internal/middleware"
	"github.com/fibreville/tigris/internal/models"
	"github.com/fibreville/tigris/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1_048_576

// Ledger is the engine surface exposed over HTTP.
type Ledger interface {
	OpenAccount(ctx context.Context, id string) error
	GetBalance(ctx context.Context, id string) (int64, error)
	History(ctx context.Context, id string) ([]models.Transaction, error)
	Transfer(ctx context.Context, fromID, toID string, amount int64, comment string, taxFree bool) error
	ListAllBalances(ctx context.Context) ([]models.AccountBalance, error)
	ListAccountIDs(ctx context.Context) ([]string, error)
	AddJob(ctx context.Context, ownerID, title string, salary int64) (models.Job, error)
	RemoveJob(ctx context.Context, ownerID string, jobID int64) (models.Job, error)
	ListJobs(ctx context.Context, ownerID string) ([]models.Job, error)
	ListAllJobs(ctx context.Context) ([]models.Job, error)
	TotalSalary(ctx context.Context, ownerID string) (int64, error)
	ListAllTotalSalaries(ctx context.Context) ([]models.SalaryTotal, error)
	PaySalary(ctx context.Context, payerID, payeeID string, salary *int64) (models.SalaryPayment, error)
	PayAllSalaries(ctx context.Context, payerID string) (models.PayrollRun, error)
	MonthlyTaxTotal(ctx context.Context, month string) (int64, error)
}

// Names labels accounts for display.
type Names interface {
	DisplayName(ctx context.Context, id string) string
	RefreshName(ctx context.Context, id string) (string, error)
	Invalidate(ctx context.Context, id string) error
}

type LedgerHandler struct {
	ledger    Ledger
	names     Names
	adminID   string
	validator *services.ValidationHelper
	log       *logrus.Logger
}

func NewLedgerHandler(ledger Ledger, names Names, adminID string, log *logrus.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		names:     names,
		adminID:   adminID,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// Routes mounts the citizen endpoints on r and the administrative ones behind
// RequireAdmin. r must already authenticate the caller.
func (h *LedgerHandler) Routes(r chi.Router) {
	r.Post("/accounts", h.OpenAccount)
	r.Get("/accounts/me/balance", h.GetBalance)
	r.Get("/accounts/me/history", h.GetHistory)
	r.Post("/transfers", h.Transfer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.adminID))

		r.Get("/accounts", h.ListBalances)
		r.Get("/citizens", h.ListCitizens)
		r.Post("/accounts/{userId}/name/refresh", h.RefreshName)

		r.Post("/jobs", h.AddJob)
		r.Get("/jobs", h.ListAllJobs)
		r.Get("/jobs/{userId}", h.ListJobs)
		r.Delete("/jobs/{userId}/{jobId}", h.RemoveJob)

		r.Get("/salaries", h.ListSalaries)
		r.Post("/salaries/pay", h.PaySalary)
		r.Post("/salaries/pay-all", h.PayAllSalaries)

		r.Get("/taxes/monthly", h.MonthlyTaxes)
	})
}

// OpenAccount opens an account for the caller, or for userId when an
// administrator asks.
func (h *LedgerHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"userId" validate:"omitempty,max=64"`
	}
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	target := userID
	if req.UserID != "" && req.UserID != userID {
		if !middleware.IsAdmin(r.Context(), h.adminID) {
			services.SendErrorResponse(w, "Only administrators can open accounts for others", http.StatusForbidden, nil)
			return
		}
		target = req.UserID
	}

	if err := h.ledger.OpenAccount(r.Context(), target); err != nil {
		h.sendLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"account": models.Account{UserID: target, Balance: 0, Name: h.names.DisplayName(r.Context(), target)},
	})
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.Account{
		UserID:  userID,
		Balance: balance,
		Name:    h.names.DisplayName(r.Context(), userID),
	})
}

// historyEntry is a transaction seen from one account: amount is negative
// for money sent.
type historyEntry struct {
	ID               int64     `json:"id"`
	CounterpartyID   string    `json:"counterpartyId"`
	CounterpartyName string    `json:"counterpartyName"`
	Amount           int64     `json:"amount"`
	Comment          string    `json:"comment"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (h *LedgerHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	transactions, err := h.ledger.History(r.Context(), userID)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}

	names := map[string]string{}
	entries := make([]historyEntry, 0, len(transactions))
	for _, t := range transactions {
		entry := historyEntry{ID: t.ID, Amount: t.Amount, Comment: t.Comment, CreatedAt: t.CreatedAt}
		if t.FromID == userID {
			entry.CounterpartyID = t.ToID
			entry.Amount = -t.Amount
		} else {
			entry.CounterpartyID = t.FromID
		}
		name, seen := names[entry.CounterpartyID]
		if !seen {
			name = h.names.DisplayName(r.Context(), entry.CounterpartyID)
			names[entry.CounterpartyID] = name
		}
		entry.CounterpartyName = name
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":       userID,
		"transactions": entries,
	})
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req struct {
		To      string      `json:"to" validate:"required,max=64"`
		Amount  json.Number `json:"amount" validate:"required"`
		Comment string      `json:"comment"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := services.ParseAmount(req.Amount.String())
	if err != nil {
		services.SendLedgerError(w, services.ErrInvalidAmount, http.StatusBadRequest)
		return
	}
	comment := services.TruncateComment(req.Comment)
	if services.IsReservedComment(comment) {
		services.SendLedgerError(w, services.ErrReservedComment, http.StatusBadRequest)
		return
	}

	if err := h.ledger.Transfer(r.Context(), userID, req.To, amount, comment, false); err != nil {
		h.sendLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"from":    userID,
		"to":      req.To,
		"amount":  amount,
		"comment": comment,
	})
}

func (h *LedgerHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.ListAllBalances(r.Context())
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}

	accounts := make([]models.Account, 0, len(balances))
	for _, b := range balances {
		accounts = append(accounts, models.Account{
			UserID:  b.UserID,
			Balance: b.Balance,
			Name:    h.names.DisplayName(r.Context(), b.UserID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *LedgerHandler) ListCitizens(w http.ResponseWriter, r *http.Request) {
	ids, err := h.ledger.ListAccountIDs(r.Context())
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userIds": ids})
}

func (h *LedgerHandler) RefreshName(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	if err := h.names.Invalidate(r.Context(), userID); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("failed to invalidate cached name")
	}
	name, err := h.names.RefreshName(r.Context(), userID)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "name": name})
}

func (h *LedgerHandler) AddJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId" validate:"required,max=64"`
		Title  string `json:"title" validate:"required,max=128"`
		Salary int64  `json:"salary" validate:"gte=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.ledger.AddJob(r.Context(), req.UserID, req.Title, req.Salary)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *LedgerHandler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobId"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid job id", http.StatusBadRequest, nil)
		return
	}

	job, err := h.ledger.RemoveJob(r.Context(), userID, jobID)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *LedgerHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	jobs, err := h.ledger.ListJobs(r.Context(), userID)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	total, err := h.ledger.TotalSalary(r.Context(), userID)
	if err != nil && !errors.Is(err, services.ErrNoJobs) {
		h.sendLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":      userID,
		"name":        h.names.DisplayName(r.Context(), userID),
		"jobs":        jobs,
		"totalSalary": total,
	})
}

func (h *LedgerHandler) ListAllJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.ledger.ListAllJobs(r.Context())
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *LedgerHandler) ListSalaries(w http.ResponseWriter, r *http.Request) {
	totals, err := h.ledger.ListAllTotalSalaries(r.Context())
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salaries": totals})
}

// PaySalary pays one citizen from the administrative account. Without a
// salary in the request the citizen's total job salary is paid.
func (h *LedgerHandler) PaySalary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId" validate:"required,max=64"`
		Salary *int64 `json:"salary" validate:"omitempty,gte=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	payment, err := h.ledger.PaySalary(r.Context(), h.adminID, req.UserID, req.Salary)
	if err != nil && !errors.Is(err, services.ErrNoSalary) {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *LedgerHandler) PayAllSalaries(w http.ResponseWriter, r *http.Request) {
	run, err := h.ledger.PayAllSalaries(r.Context(), h.adminID)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *LedgerHandler) MonthlyTaxes(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")

	total, err := h.ledger.MonthlyTaxTotal(r.Context(), month)
	if err != nil {
		h.sendLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "total": total})
}

func (h *LedgerHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

// decode reads a single JSON object into dst and validates it. It writes the
// error response itself and reports whether the handler may continue.
func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *LedgerHandler) sendLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	switch code {
	case http.StatusInternalServerError:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("ledger request failed")
		services.SendLedgerError(w, services.ErrStorageFailure, code)
		return
	case http.StatusBadGateway:
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("name directory request failed")
		services.SendLedgerError(w, services.ErrDirectoryUnavailable, code)
		return
	}
	services.SendLedgerError(w, err, code)
}

// statusCode maps ledger errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrStorageFailure):
		return http.StatusInternalServerError
	case errors.Is(err, services.ErrAlreadyExists), errors.Is(err, services.ErrSelfTransfer):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidMonth),
		errors.Is(err, services.ErrReservedComment):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientFunds), errors.Is(err, services.ErrTaxTransferFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrSenderNotFound),
		errors.Is(err, services.ErrRecipientNotFound),
		errors.Is(err, services.ErrPayerNotFound),
		errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrJobNotFound),
		errors.Is(err, services.ErrNameNotFound),
		errors.Is(err, services.ErrNoJobs),
		errors.Is(err, services.ErrNoTax):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoSalary):
		return http.StatusOK
	case errors.Is(err, services.ErrDirectoryUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
