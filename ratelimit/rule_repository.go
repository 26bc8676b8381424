package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/storage"
)

// StoredRule is a rule as persisted, with the service as its
// qualified name
type StoredRule struct {
	ID        string
	Service   string
	Subject   string
	TimeSpan  time.Duration
	Limit     int64
	Overwrite bool
}

// RuleRepository persists rate-limit rules
type RuleRepository interface {
	Insert(ctx context.Context, rule StoredRule) error
	// Delete removes the rule and, through the schema cascade, its
	// tokens. Reports whether the rule existed.
	Delete(ctx context.Context, ruleID string) (bool, error)
	GetByID(ctx context.Context, ruleID string) (*StoredRule, error)
	ListBySubjectsAndServices(ctx context.Context, subjects, services []string) ([]StoredRule, error)
	ListByService(ctx context.Context, service string) ([]StoredRule, error)
	ListBySubject(ctx context.Context, subject string) ([]StoredRule, error)
	ListAll(ctx context.Context) ([]StoredRule, error)
}

// GormRuleRepository stores rules in ac_rate_limit_rule
type GormRuleRepository struct {
	db *gorm.DB
}

func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

// NewRuleID returns a fresh short rule identifier
func NewRuleID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (r *GormRuleRepository) Insert(ctx context.Context, rule StoredRule) error {
	err := r.db.WithContext(ctx).Create(&storage.RateLimitRuleModel{
		ID:        rule.ID,
		Subject:   rule.Subject,
		Service:   rule.Service,
		TimeSpan:  int64(rule.TimeSpan / time.Second),
		Limit:     rule.Limit,
		Overwrite: rule.Overwrite,
	}).Error
	if err != nil {
		return acerrors.ErrQuery.Wrap(err)
	}
	return nil
}

func (r *GormRuleRepository) Delete(ctx context.Context, ruleID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", ruleID).Delete(&storage.RateLimitRuleModel{})
	if res.Error != nil {
		return false, acerrors.ErrQuery.Wrap(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRuleRepository) GetByID(ctx context.Context, ruleID string) (*StoredRule, error) {
	rows, err := r.query(ctx, "id = ?", ruleID)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *GormRuleRepository) ListBySubjectsAndServices(ctx context.Context, subjects, services []string) ([]StoredRule, error) {
	return r.query(ctx, "subject IN ? AND service IN ?", subjects, services)
}

func (r *GormRuleRepository) ListByService(ctx context.Context, service string) ([]StoredRule, error) {
	return r.query(ctx, "service = ?", service)
}

func (r *GormRuleRepository) ListBySubject(ctx context.Context, subject string) ([]StoredRule, error) {
	return r.query(ctx, "subject = ?", subject)
}

func (r *GormRuleRepository) ListAll(ctx context.Context) ([]StoredRule, error) {
	return r.query(ctx, "1 = 1")
}

func (r *GormRuleRepository) query(ctx context.Context, cond string, args ...interface{}) ([]StoredRule, error) {
	var models []storage.RateLimitRuleModel
	if err := r.db.WithContext(ctx).Where(cond, args...).Find(&models).Error; err != nil {
		return nil, acerrors.ErrQuery.Wrap(err)
	}

	rules := make([]StoredRule, 0, len(models))
	for _, m := range models {
		rules = append(rules, StoredRule{
			ID:        m.ID,
			Service:   m.Service,
			Subject:   m.Subject,
			TimeSpan:  time.Duration(m.TimeSpan) * time.Second,
			Limit:     m.Limit,
			Overwrite: m.Overwrite,
		})
	}
	return rules, nil
}
