package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
)

// ErrProposalNotFound is returned when the funded proposal is unknown.
var ErrProposalNotFound = errors.New("workflow: proposal not found")

// Proposal is the accepted offer a case is funded against. It fixes the
// parties, the currency, and the milestone plan. Negotiation happens in
// the marketplace service; the workflow only reads the accepted result.
type Proposal struct {
	ID         string
	ClientID   string
	AgentID    string
	Service    string
	Currency   string
	Milestones []escrow.MilestoneSpec
}

// ProposalSource looks up accepted proposals.
type ProposalSource interface {
	Lookup(ctx context.Context, proposalID string) (Proposal, error)
}

// MemoryProposals is an in-process ProposalSource for tests and local
// development.
type MemoryProposals struct {
	mu   sync.RWMutex
	byID map[string]Proposal
}

func NewMemoryProposals() *MemoryProposals {
	return &MemoryProposals{byID: make(map[string]Proposal)}
}

// Put registers a proposal.
func (s *MemoryProposals) Put(p Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
}

func (s *MemoryProposals) Lookup(_ context.Context, proposalID string) (Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[proposalID]
	if !ok {
		return Proposal{}, ErrProposalNotFound
	}
	return p, nil
}
