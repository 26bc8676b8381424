// Package ratelimit implements the multi-rule token bucket limiter.
//
// A rule grants a subject at most Limit concurrent live tokens per
// (rule, user) pair; tokens expire TimeSpan after acquisition. A
// request holds tokens from every applicable rule at once, so a single
// violating rule retires everything acquired so far.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/service"
)

// Rule constrains one subject on one service subtree.
// Overwrite rules shadow everything inherited from ancestors.
type Rule struct {
	ID        string
	Service   *service.Service
	Subject   string
	TimeSpan  time.Duration
	Limit     int64
	Overwrite bool
}

// RuleID implements eventbus.RuleRef
func (r Rule) RuleID() string {
	return r.ID
}

// SingleToken is one live acquisition under a rule
type SingleToken struct {
	ID          string
	RuleID      string
	User        string
	AcquireTime time.Time
	ExpireTime  time.Time
}

// Token is the aggregate handle for one request. Retiring it returns
// every per-rule token at once.
type Token struct {
	tokens  []acquired
	storage TokenStorage
	retired bool
}

type acquired struct {
	rule  Rule
	token SingleToken
}

// Retire returns all underlying tokens to their buckets. Safe to call
// once; later calls are no-ops.
func (t *Token) Retire(ctx context.Context) error {
	if t == nil || t.retired {
		return nil
	}
	t.retired = true
	var firstErr error
	for _, a := range t.tokens {
		if err := t.storage.RetireToken(ctx, a.rule, a.token.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AcquireResult reports the outcome of AcquireTokens. On failure,
// Violating lists every rule whose bucket was exhausted and
// AvailableTime is the earliest instant at which all of them will have
// a token free again.
type AcquireResult struct {
	Success       bool
	Token         *Token
	Violating     []Rule
	AvailableTime time.Time
}

// LimitedError wraps a failed acquisition for handler interception
type LimitedError struct {
	Result *AcquireResult
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited, available at %s", e.Result.AvailableTime.Format(time.RFC3339))
}

func (e *LimitedError) Unwrap() error {
	return acerrors.ErrRateLimited
}
