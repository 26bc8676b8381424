package permission

import (
	"context"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/eventbus"
	"github.com/KOMKZ/go-accessctl-framework/logger"
	"github.com/KOMKZ/go-accessctl-framework/service"
)

// ServiceResolver maps qualified names back onto tree nodes.
// *service.Registry satisfies this.
type ServiceResolver interface {
	GetServiceByQualifiedName(qualifiedName string, raiseOnNotExists bool) (*service.Service, error)
}

// Engine the permission resolution engine. One instance serves the
// whole tree; every operation takes the target node as an argument.
type Engine struct {
	repo         Repository
	bus          *eventbus.Bus
	resolver     ServiceResolver
	defaultAllow bool
	log          *logger.CtxZapLogger
}

// NewEngine creates a permission engine.
// defaultAllow is the globally configured polarity used when no stored
// rule matches.
func NewEngine(repo Repository, bus *eventbus.Bus, resolver ServiceResolver, defaultAllow bool) *Engine {
	return &Engine{
		repo:         repo,
		bus:          bus,
		resolver:     resolver,
		defaultAllow: defaultAllow,
		log:          logger.GetLogger("permission"),
	}
}

// DefaultAllow returns the configured default polarity
func (e *Engine) DefaultAllow() bool {
	return e.defaultAllow
}

// GetPermissionBySubjects resolves the stored permission for the node.
// Subjects are tried in caller-supplied order; for each subject, when
// trace is set, the ancestor chain is searched from the node to the
// root before the next subject is considered. Returns nil when nothing
// is stored.
func (e *Engine) GetPermissionBySubjects(ctx context.Context, svc *service.Service, subjects []string, trace bool) (*Permission, error) {
	nodes := []*service.Service{svc}
	if trace {
		nodes = svc.Trace()
	}

	for _, sub := range subjects {
		for _, node := range nodes {
			row, err := e.repo.Get(ctx, node.QualifiedName(), sub)
			if err != nil {
				return nil, err
			}
			if row != nil {
				return &Permission{Service: node, Subject: sub, Allow: row.Allow}, nil
			}
		}
	}
	return nil, nil
}

// CheckPermission resolves the effective permission, substituting the
// configured default when no stored rule matches
func (e *Engine) CheckPermission(ctx context.Context, svc *service.Service, subjects ...string) (bool, error) {
	_, allow, err := e.ResolvePermission(ctx, svc, subjects...)
	return allow, err
}

// ResolvePermission resolves the effective permission together with
// the deciding row, and logs the decision with the deciding
// (service, subject) pair. p is nil when the configured default
// decided.
func (e *Engine) ResolvePermission(ctx context.Context, svc *service.Service, subjects ...string) (p *Permission, allow bool, err error) {
	p, err = e.GetPermissionBySubjects(ctx, svc, subjects, true)
	if err != nil {
		return nil, false, err
	}

	if p != nil {
		e.log.DebugCtx(ctx, "permission decided",
			zap.String("service", svc.QualifiedName()),
			zap.String("decided_by_service", p.Service.QualifiedName()),
			zap.String("decided_by_subject", p.Subject),
			zap.Bool("allow", p.Allow))
		return p, p.Allow, nil
	}

	e.log.DebugCtx(ctx, "permission decided",
		zap.String("service", svc.QualifiedName()),
		zap.String("decided_by", "(default)"),
		zap.Bool("allow", e.defaultAllow))
	return nil, e.defaultAllow, nil
}

// SetPermission upserts an explicit decision. Returns false without
// firing events when the stored value already equals allow. Otherwise
// fires service_set_permission and service_change_permission for the
// node, then cascades service_change_permission to every descendant
// that has no own override for the subject — their resolved value has
// implicitly changed.
func (e *Engine) SetPermission(ctx context.Context, svc *service.Service, subject string, allow bool) (bool, error) {
	existing, err := e.repo.Get(ctx, svc.QualifiedName(), subject)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Allow == allow {
		return false, nil
	}

	if err := e.repo.Upsert(ctx, svc.QualifiedName(), subject, allow); err != nil {
		return false, err
	}

	e.log.InfoCtx(ctx, "permission set",
		zap.String("service", svc.QualifiedName()),
		zap.String("subject", subject),
		zap.Bool("allow", allow))

	if err := e.bus.Fire(ctx, eventbus.TypeSetPermission, eventbus.Payload{
		Service: svc, Subject: subject, Allow: allow,
	}); err != nil {
		return true, err
	}

	return true, e.fireChangeCascade(ctx, svc, subject, allow)
}

// RemovePermission deletes the stored decision, reverting the node to
// inherited/default. Returns false when nothing was stored. Fires
// service_remove_permission, then recomputes the new effective value
// and propagates service_change_permission exactly as SetPermission.
func (e *Engine) RemovePermission(ctx context.Context, svc *service.Service, subject string) (bool, error) {
	deleted, err := e.repo.Delete(ctx, svc.QualifiedName(), subject)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	e.log.InfoCtx(ctx, "permission removed",
		zap.String("service", svc.QualifiedName()),
		zap.String("subject", subject))

	if err := e.bus.Fire(ctx, eventbus.TypeRemovePermission, eventbus.Payload{
		Service: svc, Subject: subject,
	}); err != nil {
		return true, err
	}

	// effective value after removal: inherited or default
	allow := e.defaultAllow
	if p, err := e.GetPermissionBySubjects(ctx, svc, []string{subject}, true); err != nil {
		return true, err
	} else if p != nil {
		allow = p.Allow
	}

	return true, e.fireChangeCascade(ctx, svc, subject, allow)
}

// fireChangeCascade fires the effective-change event for the node and
// for every descendant whose stored rules do not override the subject
func (e *Engine) fireChangeCascade(ctx context.Context, svc *service.Service, subject string, allow bool) error {
	for _, node := range svc.Travel() {
		if node != svc {
			row, err := e.repo.Get(ctx, node.QualifiedName(), subject)
			if err != nil {
				return err
			}
			if row != nil {
				// own override, effective value unchanged
				continue
			}
		}
		if err := e.bus.Fire(ctx, eventbus.TypeChangePermission, eventbus.Payload{
			Service: node, Subject: subject, Allow: allow,
		}); err != nil {
			return err
		}
	}
	return nil
}

// GetPermissions returns the rows stored directly on the node
func (e *Engine) GetPermissions(ctx context.Context, svc *service.Service) ([]Permission, error) {
	rows, err := e.repo.ListByService(ctx, svc.QualifiedName())
	if err != nil {
		return nil, err
	}

	out := make([]Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, Permission{Service: svc, Subject: row.Subject, Allow: row.Allow})
	}
	return out, nil
}

// GetAllPermissions returns every stored row, resolved onto tree
// nodes. Rows referencing services absent from the current tree are
// skipped.
func (e *Engine) GetAllPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := e.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return e.resolveRows(rows)
}

// GetAllPermissionsBySubjects returns stored rows for the given
// subjects in caller-supplied order, suppressing a service's entry
// when a more specific subject already produced one for that service
func (e *Engine) GetAllPermissionsBySubjects(ctx context.Context, subjects ...string) ([]Permission, error) {
	seen := make(map[string]struct{})
	var out []Permission

	for _, sub := range subjects {
		rows, err := e.repo.ListBySubject(ctx, sub)
		if err != nil {
			return nil, err
		}
		resolved, err := e.resolveRows(rows)
		if err != nil {
			return nil, err
		}
		for _, p := range resolved {
			qn := p.Service.QualifiedName()
			if _, dup := seen[qn]; dup {
				continue
			}
			seen[qn] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

// StoredServiceNames returns the distinct qualified names appearing
// in stored rows, whether or not the current tree resolves them
func (e *Engine) StoredServiceNames(ctx context.Context) ([]string, error) {
	rows, err := e.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	for _, row := range rows {
		if _, dup := seen[row.Service]; dup {
			continue
		}
		seen[row.Service] = struct{}{}
		names = append(names, row.Service)
	}
	return names, nil
}

func (e *Engine) resolveRows(rows []StoredPermission) ([]Permission, error) {
	out := make([]Permission, 0, len(rows))
	for _, row := range rows {
		svc, err := e.resolver.GetServiceByQualifiedName(row.Service, false)
		if err != nil {
			return nil, err
		}
		if svc == nil {
			continue
		}
		out = append(out, Permission{Service: svc, Subject: row.Subject, Allow: row.Allow})
	}
	return out, nil
}
