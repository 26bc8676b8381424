package ratelimit

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/eventbus"
	"github.com/KOMKZ/go-accessctl-framework/logger"
	"github.com/KOMKZ/go-accessctl-framework/service"
)

// ServiceResolver maps qualified names back onto tree nodes
type ServiceResolver interface {
	GetServiceByQualifiedName(qualifiedName string, raiseOnNotExists bool) (*service.Service, error)
}

// Engine the rate-limit engine. Rules live in the rule repository,
// live tokens in the token storage; both are pluggable.
type Engine struct {
	rules    RuleRepository
	tokens   TokenStorage
	bus      *eventbus.Bus
	resolver ServiceResolver
	log      *logger.CtxZapLogger
}

func NewEngine(rules RuleRepository, tokens TokenStorage, bus *eventbus.Bus, resolver ServiceResolver) *Engine {
	return &Engine{
		rules:    rules,
		tokens:   tokens,
		bus:      bus,
		resolver: resolver,
		log:      logger.GetLogger("ratelimit"),
	}
}

// TokenStorage exposes the configured storage, mainly for the sweeper
func (e *Engine) TokenStorage() TokenStorage {
	return e.tokens
}

// GetRulesBySubjects collects the rules constraining a request on the
// node. Subjects are tried in caller order; for each subject the chain
// is walked self to root before the next subject is considered, the
// same shape as permission lookup. An overwrite rule ends the whole
// collection, shadowing everything after it.
func (e *Engine) GetRulesBySubjects(ctx context.Context, svc *service.Service, subjects []string) ([]Rule, error) {
	nodes := svc.Trace()
	names := make([]string, len(nodes))
	for i, node := range nodes {
		names[i] = node.QualifiedName()
	}
	stored, err := e.rules.ListBySubjectsAndServices(ctx, subjects, names)
	if err != nil {
		return nil, err
	}

	var out []Rule
	for _, sub := range subjects {
		for _, node := range nodes {
			for _, row := range stored {
				if row.Subject != sub || row.Service != node.QualifiedName() {
					continue
				}
				out = append(out, e.toRule(row, node))
				if row.Overwrite {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

// AcquireTokens takes one token from every rule constraining the
// request. user is the per-bucket identity, normally the request's
// most specific subject. On any violation every token acquired so far
// is retired and the result carries the violating rules together with
// the soonest instant at which one of their buckets frees a slot.
//
// Acquisition across rules is not atomic: a concurrent request may
// take a bucket's last token between two of our per-rule
// acquisitions. The rollback keeps buckets consistent; the request
// simply fails and may retry.
func (e *Engine) AcquireTokens(ctx context.Context, svc *service.Service, user string, subjects []string) (*AcquireResult, error) {
	rules, err := e.GetRulesBySubjects(ctx, svc, subjects)
	if err != nil {
		return nil, err
	}

	token := &Token{storage: e.tokens}
	var violating []Rule
	for _, rule := range rules {
		tok, err := e.tokens.AcquireToken(ctx, rule, user)
		if err != nil {
			retireErr := token.Retire(ctx)
			if retireErr != nil {
				e.log.ErrorCtx(ctx, "token rollback failed", zap.Error(retireErr))
			}
			return nil, err
		}
		if tok == nil {
			violating = append(violating, rule)
			continue
		}
		token.tokens = append(token.tokens, acquired{rule: rule, token: *tok})
	}

	if len(violating) > 0 {
		if err := token.Retire(ctx); err != nil {
			e.log.ErrorCtx(ctx, "token rollback failed", zap.Error(err))
		}
		available, err := e.availableTime(ctx, violating, user)
		if err != nil {
			return nil, err
		}
		e.log.DebugCtx(ctx, "rate limited",
			zap.String("service", svc.QualifiedName()),
			zap.String("user", user),
			zap.Int("violating_rules", len(violating)),
			zap.Time("available_time", available))
		return &AcquireResult{Violating: violating, AvailableTime: available}, nil
	}

	return &AcquireResult{Success: true, Token: token}, nil
}

// availableTime is the soonest first-expiry across the violating
// rules: the earliest instant at which any full bucket frees a slot
func (e *Engine) availableTime(ctx context.Context, violating []Rule, user string) (time.Time, error) {
	var earliest time.Time
	for _, rule := range violating {
		first, err := e.tokens.GetFirstExpireToken(ctx, rule, user)
		if err != nil {
			return time.Time{}, err
		}
		if first == nil {
			continue
		}
		if earliest.IsZero() || first.ExpireTime.Before(earliest) {
			earliest = first.ExpireTime
		}
	}
	return earliest, nil
}

// AddRule creates a rule on the node and fires
// service_add_rate_limit_rule for every service in the node's
// subtree. An overwrite rule must be the only rule for its
// (service, subject) pair.
func (e *Engine) AddRule(ctx context.Context, svc *service.Service, subject string, timeSpan time.Duration, limit int64, overwrite bool) (*Rule, error) {
	if err := validation.Validate(limit, validation.Required, validation.Min(int64(1))); err != nil {
		return nil, acerrors.ErrBadRequest.WithMsgf("limit must be positive, got %d", limit)
	}
	if timeSpan <= 0 {
		return nil, acerrors.ErrBadRequest.WithMsgf("time span must be positive, got %s", timeSpan)
	}

	if overwrite {
		existing, err := e.rules.ListBySubjectsAndServices(ctx, []string{subject}, []string{svc.QualifiedName()})
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, acerrors.ErrQuery.WithMsgf(
				"an overwrite rule conflicts with %d existing rule(s) on (%s, %s)",
				len(existing), svc.QualifiedName(), subject)
		}
	}

	stored := StoredRule{
		ID:        NewRuleID(),
		Service:   svc.QualifiedName(),
		Subject:   subject,
		TimeSpan:  timeSpan,
		Limit:     limit,
		Overwrite: overwrite,
	}
	if err := e.rules.Insert(ctx, stored); err != nil {
		return nil, err
	}

	rule := e.toRule(stored, svc)
	e.log.InfoCtx(ctx, "rate limit rule added",
		zap.String("rule_id", rule.ID),
		zap.String("service", svc.QualifiedName()),
		zap.String("subject", subject),
		zap.Duration("time_span", timeSpan),
		zap.Int64("limit", limit),
		zap.Bool("overwrite", overwrite))

	for _, node := range svc.Travel() {
		if err := e.bus.Fire(ctx, eventbus.TypeAddRateLimitRule, eventbus.Payload{
			Service: node, Subject: subject, Rule: rule,
		}); err != nil {
			return &rule, err
		}
	}
	return &rule, nil
}

// RemoveRule deletes the rule, drops its live tokens and fires
// service_remove_rate_limit_rule for the rule's subtree. Returns
// false when the rule does not exist.
func (e *Engine) RemoveRule(ctx context.Context, ruleID string) (bool, error) {
	stored, err := e.rules.GetByID(ctx, ruleID)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, nil
	}

	svc, err := e.resolver.GetServiceByQualifiedName(stored.Service, false)
	if err != nil {
		return false, err
	}

	deleted, err := e.rules.Delete(ctx, ruleID)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := e.tokens.ClearTokens(ctx, ruleID); err != nil {
		return true, err
	}

	e.log.InfoCtx(ctx, "rate limit rule removed", zap.String("rule_id", ruleID))

	if svc == nil {
		return true, nil
	}
	rule := e.toRule(*stored, svc)
	for _, node := range svc.Travel() {
		if err := e.bus.Fire(ctx, eventbus.TypeRemoveRateLimitRule, eventbus.Payload{
			Service: node, Subject: stored.Subject, Rule: rule,
		}); err != nil {
			return true, err
		}
	}
	return true, nil
}

// GetRules returns the rules attached directly to the node
func (e *Engine) GetRules(ctx context.Context, svc *service.Service) ([]Rule, error) {
	stored, err := e.rules.ListByService(ctx, svc.QualifiedName())
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(stored))
	for _, row := range stored {
		out = append(out, e.toRule(row, svc))
	}
	return out, nil
}

// GetAllRules returns every stored rule resolved onto tree nodes.
// Rules referencing services absent from the current tree are
// skipped.
func (e *Engine) GetAllRules(ctx context.Context) ([]Rule, error) {
	stored, err := e.rules.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Rule, 0, len(stored))
	for _, row := range stored {
		svc, err := e.resolver.GetServiceByQualifiedName(row.Service, false)
		if err != nil {
			return nil, err
		}
		if svc == nil {
			continue
		}
		out = append(out, e.toRule(row, svc))
	}
	return out, nil
}

// StoredServiceNames returns the distinct qualified names referenced
// by stored rules
func (e *Engine) StoredServiceNames(ctx context.Context) ([]string, error) {
	stored, err := e.rules.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	for _, row := range stored {
		if _, dup := seen[row.Service]; dup {
			continue
		}
		seen[row.Service] = struct{}{}
		names = append(names, row.Service)
	}
	return names, nil
}

// ClearTokens drops every live token under the rule, resetting its
// buckets for all users
func (e *Engine) ClearTokens(ctx context.Context, ruleID string) error {
	return e.tokens.ClearTokens(ctx, ruleID)
}

func (e *Engine) toRule(row StoredRule, svc *service.Service) Rule {
	return Rule{
		ID:        row.ID,
		Service:   svc,
		Subject:   row.Subject,
		TimeSpan:  row.TimeSpan,
		Limit:     row.Limit,
		Overwrite: row.Overwrite,
	}
}
