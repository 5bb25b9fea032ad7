package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/auth"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/ledger"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/payment"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/workflow"
)

type fundRequest struct {
	ProposalID    string `json:"proposalId"`
	AmountMinor   int64  `json:"amountMinor"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
}

type fundResponse struct {
	EscrowID string `json:"escrowId"`
	CaseID   string `json:"caseId"`
}

type releaseRequest struct {
	MilestoneIndex int `json:"milestoneIndex"`
}

type submitRequest struct {
	Evidence []string `json:"evidence"`
	Notes    string   `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type disputeRequest struct {
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

type resolveRequest struct {
	Disposition     string `json:"disposition"`
	SplitToAgentPct int64  `json:"splitToAgentPct"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type listResponse struct {
	Items      []workflow.AccountRecord `json:"items"`
	Pagination pagination               `json:"pagination"`
}

type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEscrow serves the collection routes: funding and the privileged
// account listing.
func (s *Server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleFund(w, r)
	case http.MethodGet:
		s.handleListAccounts(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		unauthenticated(w)
		return
	}
	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ProposalID == "" || req.AmountMinor <= 0 || req.Currency == "" {
		badRequest(w, "proposalId, amountMinor and currency are required")
		return
	}

	amount := ledger.New(req.AmountMinor, req.Currency)
	charge, err := s.payments.Charge(r.Context(), payment.ChargeRequest{
		ProposalID: req.ProposalID,
		Method:     req.PaymentMethod,
		Amount:     amount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	st, err := s.engine.FundEscrow(r.Context(), workflow.FundRequest{
		ProposalID: req.ProposalID,
		Amount:     amount,
		PaymentRef: charge.Ref,
		Actor:      actor,
	})
	if err != nil {
		// The capture stays reconcilable under its reference.
		s.logger.Printf("gateway: charge %s captured but not applied: %v", charge.Ref, err)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fundResponse{EscrowID: st.EscrowID, CaseID: st.CaseID})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		unauthenticated(w)
		return
	}
	if actor.Role != auth.RoleAdmin {
		writeJSON(w, http.StatusForbidden, errorResponse{Code: "forbidden", Error: "account listing is admin only"})
		return
	}

	params := workflow.ListParams{}
	if v := r.URL.Query().Get("page"); v != "" {
		params.Page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		params.Limit, _ = strconv.Atoi(v)
	}

	records, total, err := s.engine.ListAccounts(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []workflow.AccountRecord{}
	}
	page, limit := params.Page, params.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:      records,
		Pagination: pagination{Total: total, Page: page, Limit: limit},
	})
}

// handleEscrowDetail serves the escrow-keyed routes:
// GET /api/escrow/{id}, POST /api/escrow/{id}/release and /hold.
func (s *Server) handleEscrowDetail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		unauthenticated(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/escrow/"), "/")
	if parts[0] == "" {
		badRequest(w, "escrow id required")
		return
	}
	escrowID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		st, err := s.engine.GetStatusByEscrow(r.Context(), escrowID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !canView(actor, st) {
			writeJSON(w, http.StatusForbidden, errorResponse{Code: "forbidden", Error: "not a party to this case"})
			return
		}
		writeJSON(w, http.StatusOK, s.present(r, st))

	case len(parts) == 2 && parts[1] == "release":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req releaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		st, err := s.engine.GetStatusByEscrow(r.Context(), escrowID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		st, err = s.engine.ApproveMilestone(r.Context(), workflow.ApproveRequest{
			CaseID: st.CaseID,
			Index:  req.MilestoneIndex,
			Actor:  actor,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.present(r, st))

	case len(parts) == 2 && parts[1] == "hold":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req disputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		st, err := s.engine.GetStatusByEscrow(r.Context(), escrowID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		st, err = s.engine.RaiseDispute(r.Context(), workflow.DisputeRequest{
			CaseID:      st.CaseID,
			Reason:      req.Reason,
			Description: req.Description,
			Evidence:    req.Evidence,
			Actor:       actor,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.present(r, st))

	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Error: "unknown escrow route"})
	}
}

// handleCaseDetail serves the case-keyed routes: the status snapshot,
// milestone verbs, dispute lifecycle and cancellation.
func (s *Server) handleCaseDetail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		unauthenticated(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/cases/"), "/")
	if parts[0] == "" {
		badRequest(w, "case id required")
		return
	}
	caseID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		st, err := s.engine.GetStatus(r.Context(), caseID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !canView(actor, st) {
			writeJSON(w, http.StatusForbidden, errorResponse{Code: "forbidden", Error: "not a party to this case"})
			return
		}
		writeJSON(w, http.StatusOK, s.present(r, st))

	case len(parts) == 2 && parts[1] == "dispute":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleRaiseDispute(w, r, caseID, actor)

	case len(parts) == 3 && parts[1] == "dispute" && parts[2] == "resolve":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleResolveDispute(w, r, caseID, actor)

	case len(parts) == 2 && parts[1] == "cancel":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req cancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		st, err := s.engine.CancelCase(r.Context(), workflow.CancelRequest{
			CaseID: caseID,
			Reason: req.Reason,
			Actor:  actor,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.present(r, st))

	case len(parts) == 4 && parts[1] == "milestones":
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			badRequest(w, "milestone index must be a number")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleMilestoneVerb(w, r, caseID, index, parts[3], actor)

	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Error: "unknown case route"})
	}
}

func (s *Server) handleMilestoneVerb(w http.ResponseWriter, r *http.Request, caseID string, index int, verb string, actor workflow.Actor) {
	var (
		st  *workflow.Status
		err error
	)
	switch verb {
	case "complete":
		var req submitRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			badRequest(w, "invalid request body")
			return
		}
		st, err = s.engine.SubmitMilestone(r.Context(), workflow.SubmitRequest{
			CaseID:   caseID,
			Index:    index,
			Evidence: req.Evidence,
			Notes:    req.Notes,
			Actor:    actor,
		})
	case "approve":
		st, err = s.engine.ApproveMilestone(r.Context(), workflow.ApproveRequest{
			CaseID: caseID,
			Index:  index,
			Actor:  actor,
		})
	case "reject":
		var req rejectRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			badRequest(w, "invalid request body")
			return
		}
		st, err = s.engine.RejectMilestone(r.Context(), workflow.RejectRequest{
			CaseID: caseID,
			Index:  index,
			Reason: req.Reason,
			Actor:  actor,
		})
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Error: "unknown milestone action"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present(r, st))
}

func (s *Server) handleRaiseDispute(w http.ResponseWriter, r *http.Request, caseID string, actor workflow.Actor) {
	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	st, err := s.engine.RaiseDispute(r.Context(), workflow.DisputeRequest{
		CaseID:      caseID,
		Reason:      req.Reason,
		Description: req.Description,
		Evidence:    req.Evidence,
		Actor:       actor,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present(r, st))
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request, caseID string, actor workflow.Actor) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	kind, ok := dispositionKind(req.Disposition)
	if !ok {
		badRequest(w, "disposition must be release_to_agent, refund_to_client or split")
		return
	}
	st, err := s.engine.ResolveDispute(r.Context(), workflow.ResolveRequest{
		CaseID: caseID,
		Disposition: escrow.Disposition{
			Kind:            kind,
			SplitToAgentPct: req.SplitToAgentPct,
		},
		Actor: actor,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present(r, st))
}

func dispositionKind(v string) (escrow.DispositionKind, bool) {
	switch escrow.DispositionKind(v) {
	case escrow.DispositionRelease, escrow.DispositionRefund, escrow.DispositionSplit:
		return escrow.DispositionKind(v), true
	default:
		return "", false
	}
}
