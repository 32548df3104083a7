package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/wicaksono/loan-engine/internal/domain"
	"github.com/wicaksono/loan-engine/internal/service"
	"github.com/wicaksono/loan-engine/pkg/response"
)

const dateLayout = "2006-01-02"

type LoanHandler struct {
	loans     *service.LoanService
	reports   *service.ReportingService
	validator *validator.Validate
}

func NewLoanHandler(loans *service.LoanService, reports *service.ReportingService) *LoanHandler {
	v := validator.New()

	// decimal.Decimal fields need their own non-negativity check; the builtin
	// gte tag only understands numeric kinds.
	_ = v.RegisterValidation("dgte0", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && !d.IsNegative()
	})

	return &LoanHandler{
		loans:     loans,
		reports:   reports,
		validator: v,
	}
}

// CreateLoan handles POST /loans
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	loan, err := h.loans.CreateLoan(r.Context(), &request)
	if err != nil {
		response.FromError(w, "Failed to create loan", err)
		return
	}

	response.Created(w, loan)
}

// GetLoan handles GET /loans/{loanId}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	loan, err := h.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		response.FromError(w, "Failed to get loan", err)
		return
	}

	response.Success(w, loan)
}

// ListLoans handles GET /loans
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	request := domain.ListLoansRequest{
		CustomerID: query.Get("customer_id"),
		Status:     query.Get("status"),
	}
	request.Page, _ = atoiDefault(query.Get("page"), 1)
	request.Limit, _ = atoiDefault(query.Get("limit"), 20)

	result, err := h.loans.ListLoans(r.Context(), request)
	if err != nil {
		response.FromError(w, "Failed to list loans", err)
		return
	}

	response.Success(w, result)
}

// ApproveLoan handles POST /loans/{loanId}/approve
func (h *LoanHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	loan, err := h.loans.ApproveLoan(r.Context(), loanID)
	if err != nil {
		response.FromError(w, "Failed to approve loan", err)
		return
	}

	response.Success(w, loan)
}

// CancelLoan handles POST /loans/{loanId}/cancel
func (h *LoanHandler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	loan, err := h.loans.CancelLoan(r.Context(), loanID)
	if err != nil {
		response.FromError(w, "Failed to cancel loan", err)
		return
	}

	response.Success(w, loan)
}

// DisburseLoan handles POST /loans/{loanId}/disburse
func (h *LoanHandler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	var request domain.DisburseLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	loan, err := h.loans.DisburseLoan(r.Context(), loanID, request.StartDate)
	if err != nil {
		response.FromError(w, "Failed to disburse loan", err)
		return
	}

	response.Success(w, loan)
}

// DeleteLoan handles DELETE /loans/{loanId}
func (h *LoanHandler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	if err := h.loans.DeleteLoan(r.Context(), loanID); err != nil {
		response.FromError(w, "Failed to delete loan", err)
		return
	}

	response.NoContent(w)
}

// PayInstallment handles POST /installments/{installmentId}/payment
func (h *LoanHandler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	installmentID, ok := pathUUID(w, r, "installmentId")
	if !ok {
		return
	}

	var request domain.PayInstallmentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return
	}

	installment, err := h.loans.PayInstallment(r.Context(), installmentID, request.Amount, request.PaymentDate)
	if err != nil {
		response.FromError(w, "Failed to apply payment", err)
		return
	}

	response.Success(w, installment)
}

// ListOverdueInstallments handles GET /installments/overdue?as_of=&loan_id=
func (h *LoanHandler) ListOverdueInstallments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	asOf, err := parseDate(query.Get("as_of"))
	if err != nil {
		response.BadRequest(w, "as_of must be a date in YYYY-MM-DD form", err)
		return
	}

	var loanID *uuid.UUID
	if raw := query.Get("loan_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "loan_id must be a valid UUID", err)
			return
		}
		loanID = &parsed
	}

	overdue, err := h.loans.ListOverdueInstallments(r.Context(), asOf, loanID)
	if err != nil {
		response.FromError(w, "Failed to list overdue installments", err)
		return
	}

	response.Success(w, overdue)
}

// GetLoanProgress handles GET /loans/{loanId}/progress
func (h *LoanHandler) GetLoanProgress(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathUUID(w, r, "loanId")
	if !ok {
		return
	}

	progress, err := h.reports.LoanProgress(r.Context(), loanID)
	if err != nil {
		response.FromError(w, "Failed to get loan progress", err)
		return
	}

	response.Success(w, progress)
}

// TotalOutstanding handles GET /reports/outstanding
func (h *LoanHandler) TotalOutstanding(w http.ResponseWriter, r *http.Request) {
	outstanding, err := h.reports.TotalOutstanding(r.Context())
	if err != nil {
		response.FromError(w, "Failed to compute outstanding", err)
		return
	}

	response.Success(w, outstanding)
}

// CollectionRate handles GET /reports/collection?from=&to=
func (h *LoanHandler) CollectionRate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseDate(query.Get("from"))
	if err != nil {
		response.BadRequest(w, "from must be a date in YYYY-MM-DD form", err)
		return
	}

	to, err := parseDate(query.Get("to"))
	if err != nil {
		response.BadRequest(w, "to must be a date in YYYY-MM-DD form", err)
		return
	}

	rate, err := h.reports.CollectionRate(r.Context(), from, to)
	if err != nil {
		response.FromError(w, "Failed to compute collection rate", err)
		return
	}

	response.Success(w, rate)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.BadRequest(w, name+" must be a valid UUID", err)
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(dateLayout, raw)
}

func atoiDefault(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, err
	}
	return value, nil
}
