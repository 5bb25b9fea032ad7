package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/Aditi21Attri/VM-visa-backend-sub001/escrow"
	"github.com/Aditi21Attri/VM-visa-backend-sub001/notify"
)

// MemoryStore is an in-process Store with the same atomicity and
// versioning contract as the Postgres store. It backs unit tests and
// local development; a mutex stands in for the database transaction.
type MemoryStore struct {
	mu          sync.Mutex
	cases       map[string]*escrow.Case
	byEscrow    map[string]string
	byProposal  map[string]string
	paymentRefs map[string]string
	events      []notify.Event
	outbox      *notify.MemoryOutbox
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:       make(map[string]*escrow.Case),
		byEscrow:    make(map[string]string),
		byProposal:  make(map[string]string),
		paymentRefs: make(map[string]string),
		outbox:      notify.NewMemoryOutbox(),
	}
}

// Outbox exposes the message queue fed by saved events, so a dispatcher
// (or a test) can drain it.
func (s *MemoryStore) Outbox() *notify.MemoryOutbox { return s.outbox }

func (s *MemoryStore) CreateCase(_ context.Context, c *escrow.Case, paymentRef string, events []notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.paymentRefs[paymentRef]; used {
		return ErrAlreadyFunded
	}
	if liveID, ok := s.byProposal[c.ProposalID]; ok {
		if live, exists := s.cases[liveID]; exists && !live.State.Terminal() {
			return ErrProposalFunded
		}
	}

	s.paymentRefs[paymentRef] = c.ID
	s.cases[c.ID] = c.Clone()
	s.byEscrow[c.Account.ID] = c.ID
	s.byProposal[c.ProposalID] = c.ID
	return s.record(events)
}

func (s *MemoryStore) GetCase(_ context.Context, caseID string) (*escrow.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) GetCaseByEscrow(_ context.Context, escrowID string) (*escrow.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caseID, ok := s.byEscrow[escrowID]
	if !ok {
		return nil, ErrCaseNotFound
	}
	c, ok := s.cases[caseID]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) UpdateCase(_ context.Context, c *escrow.Case, events []notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.cases[c.ID]
	if !ok {
		return ErrCaseNotFound
	}
	if stored.Version != c.Version {
		return ErrConflict
	}
	c.Version++
	s.cases[c.ID] = c.Clone()
	return s.record(events)
}

func (s *MemoryStore) ListAccounts(_ context.Context, params ListParams) ([]AccountRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params = params.normalize()
	all := make([]*escrow.Case, 0, len(s.cases))
	for _, c := range s.cases {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Account.CreatedAt.Equal(all[j].Account.CreatedAt) {
			return all[i].Account.CreatedAt.After(all[j].Account.CreatedAt)
		}
		return all[i].Account.ID > all[j].Account.ID
	})

	total := len(all)
	start := (params.Page - 1) * params.Limit
	if start >= total {
		return []AccountRecord{}, total, nil
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	records := make([]AccountRecord, 0, end-start)
	for _, c := range all[start:end] {
		records = append(records, AccountRecord{
			EscrowID:      c.Account.ID,
			CaseID:        c.ID,
			ProposalID:    c.ProposalID,
			ClientID:      c.ClientID,
			AgentID:       c.AgentID,
			Currency:      c.Account.Currency,
			FundedMinor:   c.Account.FundedMinor,
			ReleasedMinor: c.Account.ReleasedMinor,
			HeldMinor:     c.Account.HeldMinor,
			RefundedMinor: c.Account.RefundedMinor,
			State:         string(c.Account.State),
			CaseState:     string(c.State),
			CreatedAt:     c.Account.CreatedAt,
		})
	}
	return records, total, nil
}

// Events returns every event recorded so far, in commit order. Test
// hook mirroring the case_events table.
func (s *MemoryStore) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Event(nil), s.events...)
}

func (s *MemoryStore) record(events []notify.Event) error {
	s.events = append(s.events, events...)
	return s.outbox.Enqueue(events...)
}
