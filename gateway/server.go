// Package gateway exposes the escrow workflow over HTTP. It translates
// authenticated marketplace requests into engine operations and maps
// domain failures onto stable error codes.
package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/auth"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/document"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/payment"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/workflow"
)

// WorkflowEngine is the slice of the engine the gateway drives.
type WorkflowEngine interface {
	FundEscrow(ctx context.Context, req workflow.FundRequest) (*workflow.Status, error)
	SubmitMilestone(ctx context.Context, req workflow.SubmitRequest) (*workflow.Status, error)
	ApproveMilestone(ctx context.Context, req workflow.ApproveRequest) (*workflow.Status, error)
	RejectMilestone(ctx context.Context, req workflow.RejectRequest) (*workflow.Status, error)
	RaiseDispute(ctx context.Context, req workflow.DisputeRequest) (*workflow.Status, error)
	ResolveDispute(ctx context.Context, req workflow.ResolveRequest) (*workflow.Status, error)
	CancelCase(ctx context.Context, req workflow.CancelRequest) (*workflow.Status, error)
	GetStatus(ctx context.Context, caseID string) (*workflow.Status, error)
	GetStatusByEscrow(ctx context.Context, escrowID string) (*workflow.Status, error)
	ListAccounts(ctx context.Context, params workflow.ListParams) ([]workflow.AccountRecord, int, error)
}

// TokenVerifier authenticates callers. auth.Service implements it.
type TokenVerifier interface {
	VerifyToken(token string) (auth.Identity, error)
	VerifyArbiterKey(key string) error
}

type ctxKey string

const (
	ctxKeyUserID ctxKey = "userID"
	ctxKeyRole   ctxKey = "role"
)

// arbiterUserID identifies service callers authenticated by arbiter key
// rather than by a marketplace JWT.
const arbiterUserID = "arbiter"

type Server struct {
	engine   WorkflowEngine
	verifier TokenVerifier
	payments payment.Provider
	docs     document.Store
	logger   *log.Logger
	mux      *http.ServeMux
}

func NewServer(engine WorkflowEngine, verifier TokenVerifier, payments payment.Provider, docs document.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		engine:   engine,
		verifier: verifier,
		payments: payments,
		docs:     docs,
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/escrow", s.withAuth(s.handleEscrow))
	mux.HandleFunc("/api/escrow/", s.withAuth(s.handleEscrowDetail))
	mux.HandleFunc("/api/cases/", s.withAuth(s.handleCaseDetail))
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// withAuth resolves the caller identity into the request context. Service
// callers present X-Arbiter-Key; everyone else presents a marketplace JWT.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-Arbiter-Key"); key != "" {
			if err := s.verifier.VerifyArbiterKey(key); err != nil {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Error: "invalid arbiter key"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUserID, arbiterUserID)
			ctx = context.WithValue(ctx, ctxKeyRole, auth.RoleAdmin)
			next(w, r.WithContext(ctx))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Error: "missing bearer token"})
			return
		}
		identity, err := s.verifier.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Error: "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, identity.UserID)
		ctx = context.WithValue(ctx, ctxKeyRole, identity.Role)
		next(w, r.WithContext(ctx))
	}
}

func actorFrom(r *http.Request) (workflow.Actor, bool) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	if userID == "" || role == "" {
		return workflow.Actor{}, false
	}
	return workflow.Actor{ID: userID, Role: role}, true
}

// canView reports whether the actor may read a case snapshot.
func canView(actor workflow.Actor, st *workflow.Status) bool {
	return actor.Role == auth.RoleAdmin || actor.ID == st.ClientID || actor.ID == st.AgentID
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("gateway: internal error: %v", err)
		writeJSON(w, status, errorResponse{Code: code, Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

// classify maps domain failures onto HTTP status and a stable error code.
func classify(err error) (int, string) {
	var (
		validationErr *escrow.ValidationError
		sumErr        *escrow.MilestoneSumMismatchError
		currencyErr   *ledger.CurrencyError
		milestoneErr  *escrow.MilestoneStateError
		caseErr       *escrow.CaseStateError
		accountErr    *escrow.AccountStateError
		exceedsErr    *escrow.ExceedsAvailableError
		fundsErr      *ledger.InsufficientFundsError
	)
	switch {
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, workflow.ErrCaseNotFound),
		errors.Is(err, workflow.ErrProposalNotFound),
		errors.Is(err, escrow.ErrMilestoneIndex),
		errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict, "concurrent_update"
	case errors.Is(err, workflow.ErrAlreadyFunded),
		errors.Is(err, workflow.ErrProposalFunded):
		return http.StatusConflict, "already_funded"
	case errors.Is(err, escrow.ErrAlreadyOnHold),
		errors.Is(err, escrow.ErrNoOpenDispute),
		errors.As(err, &milestoneErr),
		errors.As(err, &caseErr),
		errors.As(err, &accountErr):
		return http.StatusConflict, "state_conflict"
	case errors.As(err, &exceedsErr), errors.As(err, &fundsErr):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, payment.ErrDeclined):
		return http.StatusUnprocessableEntity, "payment_declined"
	case errors.As(err, &validationErr),
		errors.As(err, &sumErr),
		errors.As(err, &currencyErr):
		return http.StatusBadRequest, "validation_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
