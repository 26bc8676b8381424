package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/storage"
)

// DatastoreTokenStorage keeps live tokens in the relational store so
// they survive restarts and are shared across processes.
//
// AcquireToken counts and inserts inside one transaction. Engines that
// need stricter isolation than the database default should front this
// storage with the redis implementation instead.
type DatastoreTokenStorage struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatastoreTokenStorage(db *gorm.DB) *DatastoreTokenStorage {
	return &DatastoreTokenStorage{db: db, now: time.Now}
}

func (s *DatastoreTokenStorage) AcquireToken(ctx context.Context, rule Rule, user string) (*SingleToken, error) {
	now := s.now()
	tok := &SingleToken{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		User:        user,
		AcquireTime: now,
		ExpireTime:  now.Add(rule.TimeSpan),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&storage.RateLimitTokenModel{}).
			Where("rule_id = ? AND token_user = ? AND expire_time > ?", rule.ID, user, now).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= rule.Limit {
			return errBucketExhausted
		}
		return tx.Create(&storage.RateLimitTokenModel{
			ID:          tok.ID,
			RuleID:      tok.RuleID,
			User:        tok.User,
			AcquireTime: tok.AcquireTime,
			ExpireTime:  tok.ExpireTime,
		}).Error
	})
	if errors.Is(err, errBucketExhausted) {
		return nil, nil
	}
	if err != nil {
		return nil, acerrors.ErrQuery.Wrap(err)
	}
	return tok, nil
}

var errBucketExhausted = errors.New("bucket exhausted")

func (s *DatastoreTokenStorage) GetFirstExpireToken(ctx context.Context, rule Rule, user string) (*SingleToken, error) {
	var row storage.RateLimitTokenModel
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND token_user = ? AND expire_time > ?", rule.ID, user, s.now()).
		Order("expire_time asc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, acerrors.ErrQuery.Wrap(err)
	}
	return &SingleToken{
		ID:          row.ID,
		RuleID:      row.RuleID,
		User:        row.User,
		AcquireTime: row.AcquireTime,
		ExpireTime:  row.ExpireTime,
	}, nil
}

func (s *DatastoreTokenStorage) RetireToken(ctx context.Context, rule Rule, tokenID string) error {
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND id = ?", rule.ID, tokenID).
		Delete(&storage.RateLimitTokenModel{}).Error
	if err != nil {
		return acerrors.ErrQuery.Wrap(err)
	}
	return nil
}

func (s *DatastoreTokenStorage) DeleteOutdatedTokens(ctx context.Context, now time.Time) error {
	err := s.db.WithContext(ctx).
		Where("expire_time <= ?", now).
		Delete(&storage.RateLimitTokenModel{}).Error
	if err != nil {
		return acerrors.ErrQuery.Wrap(err)
	}
	return nil
}

func (s *DatastoreTokenStorage) ClearTokens(ctx context.Context, ruleID string) error {
	err := s.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Delete(&storage.RateLimitTokenModel{}).Error
	if err != nil {
		return acerrors.ErrQuery.Wrap(err)
	}
	return nil
}
