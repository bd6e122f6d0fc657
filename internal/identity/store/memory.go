// Package store persists master identities, quarantined submissions and
// match candidates. Stores report facts through sentinel errors; services
// decide what they mean.
package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"ssot/internal/identity/models"
	"ssot/internal/matching/blocking"
	"ssot/internal/matching/scoring"
	id "ssot/pkg/domain"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
)

type candidateKey struct {
	submission id.SubmissionID
	master     id.MasterID
	run        int
}

// InMemory keeps the identity tables in maps. Inside a MemoryRunner
// transaction writes are validated against committed state and applied on
// commit; outside one they apply immediately.
type InMemory struct {
	mu          sync.RWMutex
	masters     map[id.MasterID]*models.Master
	blocks      map[string]map[id.MasterID]struct{}
	submissions map[id.SubmissionID]*models.Submission
	candidates  map[id.CandidateID]*models.Candidate
	pairs       map[candidateKey]id.CandidateID
}

func NewInMemory() *InMemory {
	return &InMemory{
		masters:     make(map[id.MasterID]*models.Master),
		blocks:      make(map[string]map[id.MasterID]struct{}),
		submissions: make(map[id.SubmissionID]*models.Submission),
		candidates:  make(map[id.CandidateID]*models.Candidate),
		pairs:       make(map[candidateKey]id.CandidateID),
	}
}

// write validates under the read lock and applies under the write lock, either
// now or when the enclosing transaction commits.
func (s *InMemory) write(ctx context.Context, check func() error, apply func()) error {
	if j, ok := txcontext.JournalFrom(ctx); ok {
		s.mu.RLock()
		err := check()
		s.mu.RUnlock()
		if err != nil {
			return err
		}
		j.Defer(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			apply()
		})
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := check(); err != nil {
		return err
	}
	apply()
	return nil
}

func (s *InMemory) CreateMaster(ctx context.Context, m *models.Master) error {
	saved := m.Clone()
	return s.write(ctx, func() error {
		if _, exists := s.masters[saved.ID]; exists {
			return sentinel.ErrAlreadyUsed
		}
		return nil
	}, func() {
		s.masters[saved.ID] = saved
		s.indexLocked(saved)
	})
}

func (s *InMemory) UpdateMaster(ctx context.Context, m *models.Master) error {
	saved := m.Clone()
	return s.write(ctx, func() error {
		if _, exists := s.masters[saved.ID]; !exists {
			return sentinel.ErrNotFound
		}
		return nil
	}, func() {
		s.unindexLocked(s.masters[saved.ID])
		s.masters[saved.ID] = saved
		s.indexLocked(saved)
	})
}

func (s *InMemory) indexLocked(m *models.Master) {
	for _, key := range blocking.AllKeys(m.Record()) {
		members, ok := s.blocks[key]
		if !ok {
			members = make(map[id.MasterID]struct{})
			s.blocks[key] = members
		}
		members[m.ID] = struct{}{}
	}
}

func (s *InMemory) unindexLocked(m *models.Master) {
	for _, key := range blocking.AllKeys(m.Record()) {
		delete(s.blocks[key], m.ID)
	}
}

func (s *InMemory) FindMaster(_ context.Context, masterID id.MasterID) (*models.Master, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.masters[masterID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.Clone(), nil
}

// FindMasterForUpdate reads a master for a read-modify-write. MemoryRunner
// admits one transaction at a time, so the plain read is already exclusive.
func (s *InMemory) FindMasterForUpdate(ctx context.Context, masterID id.MasterID) (*models.Master, error) {
	return s.FindMaster(ctx, masterID)
}

// ListMasters returns masters ordered by name whose name contains nameQuery,
// ignoring case. An empty query lists everyone.
func (s *InMemory) ListMasters(_ context.Context, nameQuery string, limit int) ([]*models.Master, error) {
	needle := strings.ToLower(nameQuery)
	s.mu.RLock()
	out := make([]*models.Master, 0, len(s.masters))
	for _, m := range s.masters {
		if needle == "" || strings.Contains(strings.ToLower(m.FullName), needle) {
			out = append(out, m.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Master) int {
		if c := cmp.Compare(a.FullName, b.FullName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindMasters returns the masters that exist among ids, in no particular order.
func (s *InMemory) FindMasters(_ context.Context, ids []id.MasterID) ([]*models.Master, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Master, 0, len(ids))
	for _, masterID := range ids {
		if m, ok := s.masters[masterID]; ok {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

// BlockMembers returns up to limit master ids sharing key.
func (s *InMemory) BlockMembers(_ context.Context, key string, limit int) ([]id.MasterID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.blocks[key]
	out := make([]id.MasterID, 0, min(len(members), limit))
	for masterID := range members {
		if len(out) == limit {
			break
		}
		out = append(out, masterID)
	}
	return out, nil
}

func (s *InMemory) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	saved := *sub
	return s.write(ctx, func() error {
		if _, exists := s.submissions[saved.ID]; exists {
			return sentinel.ErrAlreadyUsed
		}
		return nil
	}, func() {
		s.submissions[saved.ID] = &saved
	})
}

func (s *InMemory) FindSubmission(_ context.Context, submissionID id.SubmissionID) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *sub
	return &c, nil
}

// TransitionSubmission stores a terminal submission only if the stored one is
// still pending. It returns sentinel.ErrInvalidState otherwise.
func (s *InMemory) TransitionSubmission(ctx context.Context, sub *models.Submission) error {
	saved := *sub
	return s.write(ctx, func() error {
		current, ok := s.submissions[saved.ID]
		if !ok {
			return sentinel.ErrNotFound
		}
		if !current.Status.CanTransitionTo(saved.Status) {
			return sentinel.ErrInvalidState
		}
		return nil
	}, func() {
		current := s.submissions[saved.ID]
		saved.Payload = current.Payload
		s.submissions[saved.ID] = &saved
	})
}

// AdvanceScoringRun moves a pending submission from run `from` to `from+1`.
// It returns sentinel.ErrInvalidState when the submission is no longer pending
// or another rescore advanced it first.
func (s *InMemory) AdvanceScoringRun(ctx context.Context, submissionID id.SubmissionID, from int) error {
	return s.write(ctx, func() error {
		current, ok := s.submissions[submissionID]
		if !ok {
			return sentinel.ErrNotFound
		}
		if !current.IsPending() || current.ScoringRun != from {
			return sentinel.ErrInvalidState
		}
		return nil
	}, func() {
		c := *s.submissions[submissionID]
		c.ScoringRun = from + 1
		s.submissions[submissionID] = &c
	})
}

func (s *InMemory) CreateCandidates(ctx context.Context, cs []*models.Candidate) error {
	saved := make([]models.Candidate, len(cs))
	for i, c := range cs {
		saved[i] = *c
	}
	return s.write(ctx, func() error {
		seen := make(map[candidateKey]bool, len(saved))
		for _, c := range saved {
			k := candidateKey{c.SubmissionID, c.MasterID, c.ScoringRun}
			if _, exists := s.pairs[k]; exists || seen[k] {
				return sentinel.ErrAlreadyUsed
			}
			if _, exists := s.candidates[c.ID]; exists {
				return sentinel.ErrAlreadyUsed
			}
			seen[k] = true
		}
		return nil
	}, func() {
		for i := range saved {
			c := &saved[i]
			s.candidates[c.ID] = c
			s.pairs[candidateKey{c.SubmissionID, c.MasterID, c.ScoringRun}] = c.ID
		}
	})
}

func (s *InMemory) FindCandidate(_ context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[candidateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCandidates returns the candidates of one scoring run, best first.
func (s *InMemory) ListCandidates(_ context.Context, submissionID id.SubmissionID, run int) ([]*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Candidate
	for _, c := range s.candidates {
		if c.SubmissionID == submissionID && c.ScoringRun == run {
			cp := *c
			out = append(out, &cp)
		}
	}
	models.SortByScore(out)
	return out, nil
}

// activeReviewLocked collects possible candidates from the current scoring run
// of pending submissions.
func (s *InMemory) activeReviewLocked() []*models.Candidate {
	var active []*models.Candidate
	for _, c := range s.candidates {
		sub := s.submissions[c.SubmissionID]
		if sub == nil || !sub.IsPending() || sub.ScoringRun != c.ScoringRun {
			continue
		}
		if c.Classification != scoring.Possible {
			continue
		}
		cp := *c
		active = append(active, &cp)
	}
	return active
}

// CountReview returns the size of the whole review queue.
func (s *InMemory) CountReview(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activeReviewLocked()), nil
}

// ListReview returns active possible candidates of pending submissions, best
// first, with both records attached.
func (s *InMemory) ListReview(_ context.Context, limit int) ([]models.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := s.activeReviewLocked()
	models.SortByScore(active)
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}

	out := make([]models.ReviewItem, 0, len(active))
	for _, c := range active {
		sub := *s.submissions[c.SubmissionID]
		item := models.ReviewItem{Candidate: c, Submission: &sub}
		if m, ok := s.masters[c.MasterID]; ok {
			item.Master = m.Clone()
		}
		out = append(out, item)
	}
	return out, nil
}
