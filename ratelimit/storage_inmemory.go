package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type bucketKey struct {
	RuleID string
	User   string
}

// InmemoryTokenStorage keeps live tokens in process memory. Expired
// tokens are pruned lazily on access and eagerly by the sweeper.
type InmemoryTokenStorage struct {
	mu      sync.Mutex
	buckets map[bucketKey][]SingleToken
	now     func() time.Time
}

func NewInmemoryTokenStorage() *InmemoryTokenStorage {
	return &InmemoryTokenStorage{
		buckets: make(map[bucketKey][]SingleToken),
		now:     time.Now,
	}
}

func (s *InmemoryTokenStorage) AcquireToken(_ context.Context, rule Rule, user string) (*SingleToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey{RuleID: rule.ID, User: user}
	live := s.pruneLocked(key)
	if int64(len(live)) >= rule.Limit {
		return nil, nil
	}

	now := s.now()
	tok := SingleToken{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		User:        user,
		AcquireTime: now,
		ExpireTime:  now.Add(rule.TimeSpan),
	}
	s.buckets[key] = append(live, tok)
	return &tok, nil
}

func (s *InmemoryTokenStorage) GetFirstExpireToken(_ context.Context, rule Rule, user string) (*SingleToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.pruneLocked(bucketKey{RuleID: rule.ID, User: user})
	if len(live) == 0 {
		return nil, nil
	}
	first := live[0]
	for _, tok := range live[1:] {
		if tok.ExpireTime.Before(first.ExpireTime) {
			first = tok
		}
	}
	return &first, nil
}

func (s *InmemoryTokenStorage) RetireToken(_ context.Context, rule Rule, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, toks := range s.buckets {
		if key.RuleID != rule.ID {
			continue
		}
		for i, tok := range toks {
			if tok.ID == tokenID {
				s.buckets[key] = append(toks[:i], toks[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (s *InmemoryTokenStorage) DeleteOutdatedTokens(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, toks := range s.buckets {
		kept := toks[:0]
		for _, tok := range toks {
			if tok.ExpireTime.After(now) {
				kept = append(kept, tok)
			}
		}
		if len(kept) == 0 {
			delete(s.buckets, key)
		} else {
			s.buckets[key] = kept
		}
	}
	return nil
}

func (s *InmemoryTokenStorage) ClearTokens(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.buckets {
		if key.RuleID == ruleID {
			delete(s.buckets, key)
		}
	}
	return nil
}

// pruneLocked drops expired tokens for the key and returns the live
// remainder. Caller holds the lock.
func (s *InmemoryTokenStorage) pruneLocked(key bucketKey) []SingleToken {
	now := s.now()
	live := make([]SingleToken, 0, len(s.buckets[key]))
	for _, tok := range s.buckets[key] {
		if tok.ExpireTime.After(now) {
			live = append(live, tok)
		}
	}
	if len(live) == 0 {
		delete(s.buckets, key)
	} else {
		s.buckets[key] = live
	}
	return live
}
