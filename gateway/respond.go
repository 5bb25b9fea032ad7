package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/workflow"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "validation_error", Error: msg})
}

func unauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthenticated", Error: "authentication required"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "method_not_allowed", Error: "method not allowed"})
}

// present resolves evidence refs in a status snapshot to document URLs.
// A ref that cannot be resolved is returned as-is; the snapshot is still
// useful without the link.
func (s *Server) present(r *http.Request, st *workflow.Status) *workflow.Status {
	if s.docs == nil {
		return st
	}
	ctx := r.Context()
	resolve := func(refs []string) {
		for i, ref := range refs {
			if url, err := s.docs.ResolveURL(ctx, ref); err == nil {
				refs[i] = url
			}
		}
	}
	for i := range st.Milestones {
		resolve(st.Milestones[i].Evidence)
	}
	if st.Dispute != nil {
		resolve(st.Dispute.Evidence)
	}
	for i := range st.Disputes {
		resolve(st.Disputes[i].Evidence)
	}
	return st
}
