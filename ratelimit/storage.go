package ratelimit

import (
	"context"
	"time"
)

// TokenStorage tracks live tokens per (rule, user). Implementations
// must make AcquireToken atomic with respect to the rule's limit;
// concurrent acquisitions on the same pair must never exceed it.
type TokenStorage interface {
	// AcquireToken takes one token from the bucket, or returns nil
	// when the bucket is exhausted.
	AcquireToken(ctx context.Context, rule Rule, user string) (*SingleToken, error)

	// GetFirstExpireToken returns the live token that expires soonest
	// for the pair, or nil when none are live.
	GetFirstExpireToken(ctx context.Context, rule Rule, user string) (*SingleToken, error)

	// RetireToken returns a token to the bucket before its expiry
	RetireToken(ctx context.Context, rule Rule, tokenID string) error

	// DeleteOutdatedTokens drops every token expired before now
	DeleteOutdatedTokens(ctx context.Context, now time.Time) error

	// ClearTokens drops all tokens for the rule, all users
	ClearTokens(ctx context.Context, ruleID string) error
}
