package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/proposal"
)

// MemoryStore keeps proposals, workflows and audit entries in process. It
// backs DATABASE_DRIVER=memory and the service tests. Values are cloned on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[string]*proposal.Proposal
	workflows map[string]*approval.Workflow
	wfSeq     map[string]int
	nextSeq   int
	audit     []*AuditEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[string]*proposal.Proposal),
		workflows: make(map[string]*approval.Workflow),
		wfSeq:     make(map[string]int),
	}
}

// Proposals returns the store's ProposalStore view.
func (m *MemoryStore) Proposals() ProposalStore { return memoryProposals{m} }

// Workflows returns the store's WorkflowStore view.
func (m *MemoryStore) Workflows() WorkflowStore { return memoryWorkflows{m} }

// Audit returns the store's AuditStore view.
func (m *MemoryStore) Audit() AuditStore { return memoryAudit{m} }

// ── proposals ────────────────────────────────────────────────────────────────

type memoryProposals struct{ m *MemoryStore }

func (s memoryProposals) Create(_ context.Context, p *proposal.Proposal) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.proposals[p.ID]; ok {
		return errors.New(errors.ErrCodeConflict, "proposal "+p.ID+" already exists")
	}
	s.m.proposals[p.ID] = p.Clone()
	return nil
}

func (s memoryProposals) GetByID(_ context.Context, id string) (*proposal.Proposal, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	p, ok := s.m.proposals[id]
	if !ok {
		return nil, errors.NotFound("proposal", id)
	}
	return p.Clone(), nil
}

func (s memoryProposals) List(_ context.Context, filter ProposalFilter) ([]*proposal.Proposal, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	var matched []*proposal.Proposal
	for _, p := range s.m.proposals {
		if filter.EntityID != "" && p.EntityID != filter.EntityID {
			continue
		}
		if filter.ClientID != "" && p.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*proposal.Proposal{}, nil
	}
	if filter.Offset > 0 {
		matched = matched[filter.Offset:]
	}
	if limit := filter.limit(); len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*proposal.Proposal, len(matched))
	for i, p := range matched {
		out[i] = p.Clone()
	}
	return out, nil
}

func (s memoryProposals) Update(_ context.Context, p *proposal.Proposal) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.proposals[p.ID]; !ok {
		return errors.NotFound("proposal", p.ID)
	}
	s.m.proposals[p.ID] = p.Clone()
	return nil
}

func (s memoryProposals) Delete(_ context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.proposals[id]; !ok {
		return errors.NotFound("proposal", id)
	}
	delete(s.m.proposals, id)
	for wfID, wf := range s.m.workflows {
		if wf.ProposalID == id {
			delete(s.m.workflows, wfID)
			delete(s.m.wfSeq, wfID)
		}
	}
	return nil
}

// ── workflows ────────────────────────────────────────────────────────────────

type memoryWorkflows struct{ m *MemoryStore }

func (s memoryWorkflows) Create(_ context.Context, wf *approval.Workflow) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.proposals[wf.ProposalID]; !ok {
		return errors.NotFound("proposal", wf.ProposalID)
	}
	if _, ok := s.m.workflows[wf.ID]; ok {
		return errors.New(errors.ErrCodeConflict, "approval workflow "+wf.ID+" already exists")
	}
	s.m.workflows[wf.ID] = wf.Clone()
	s.m.nextSeq++
	s.m.wfSeq[wf.ID] = s.m.nextSeq
	return nil
}

func (s memoryWorkflows) GetByID(_ context.Context, id string) (*approval.Workflow, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	wf, ok := s.m.workflows[id]
	if !ok {
		return nil, errors.NotFound("approval_workflow", id)
	}
	return wf.Clone(), nil
}

func (s memoryWorkflows) GetLatestByProposalID(ctx context.Context, proposalID string) (*approval.Workflow, error) {
	all, err := s.ListByProposalID(ctx, proposalID)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[len(all)-1], nil
}

func (s memoryWorkflows) ListByProposalID(_ context.Context, proposalID string) ([]*approval.Workflow, error) {
	return s.collect(func(wf *approval.Workflow) bool { return wf.ProposalID == proposalID }), nil
}

func (s memoryWorkflows) ListPendingForApprover(_ context.Context, approverID string) ([]*approval.Workflow, error) {
	return filterActiveFor(s.collect(func(wf *approval.Workflow) bool {
		return wf.Status == approval.StatusPending
	}), approverID), nil
}

func (s memoryWorkflows) Update(_ context.Context, wf *approval.Workflow) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.workflows[wf.ID]; !ok {
		return errors.NotFound("approval_workflow", wf.ID)
	}
	s.m.workflows[wf.ID] = wf.Clone()
	return nil
}

// collect returns clones of matching workflows, oldest first.
func (s memoryWorkflows) collect(match func(*approval.Workflow) bool) []*approval.Workflow {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := []*approval.Workflow{}
	for _, wf := range s.m.workflows {
		if match(wf) {
			out = append(out, wf.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.m.wfSeq[out[i].ID] < s.m.wfSeq[out[j].ID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ── audit ────────────────────────────────────────────────────────────────────

type memoryAudit struct{ m *MemoryStore }

func (s memoryAudit) Append(_ context.Context, entry *AuditEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	c := *entry
	s.m.audit = append(s.m.audit, &c)
	return nil
}

func (s memoryAudit) ListByProposalID(_ context.Context, proposalID string) ([]*AuditEntry, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := []*AuditEntry{}
	for _, e := range s.m.audit {
		if e.ProposalID == proposalID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
