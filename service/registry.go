package service

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/logger"
)

// RootName the synthetic name of the root node
const RootName = "bot"

// PluginDiscovery lets the registry confirm a plugin actually exists
// before auto-creating its service. The host framework supplies this.
type PluginDiscovery interface {
	HasPlugin(name string) bool
}

// PluginDiscoveryFunc adapter for plain functions
type PluginDiscoveryFunc func(name string) bool

// HasPlugin implements PluginDiscovery
func (f PluginDiscoveryFunc) HasPlugin(name string) bool {
	return f(name)
}

// Registry owns the service tree. Constructed once at process start
// and threaded through as an explicit dependency; the tree is mutated
// only during startup, so lookups after that point take the read lock
// purely for hygiene.
type Registry struct {
	mu        sync.RWMutex
	root      *Service
	discovery PluginDiscovery
	log       *logger.CtxZapLogger
}

// NewRegistry creates a registry with an empty tree.
// discovery may be nil; GetOrCreatePluginService then refuses to
// auto-create anything.
func NewRegistry(discovery PluginDiscovery) *Registry {
	return &Registry{
		root:      newService(RootName, KindRoot, nil, false),
		discovery: discovery,
		log:       logger.GetLogger("service"),
	}
}

// Root returns the root node
func (r *Registry) Root() *Service {
	return r.root
}

func (r *Registry) createPluginService(name string, autoCreated bool) (*Service, error) {
	if !nameRe.MatchString(name) {
		return nil, acerrors.ErrBadRequest.WithMsgf("invalid plugin name: %s", name)
	}
	if _, exists := r.root.children[name]; exists {
		return nil, acerrors.ErrBadRequest.WithMsgf("plugin service already exists: %s", name)
	}

	svc := newService(name, KindPlugin, r.root, autoCreated)
	r.root.children[name] = svc
	r.root.order = append(r.root.order, name)

	r.log.Debug("created plugin service",
		zap.String("service", svc.QualifiedName()),
		zap.Bool("auto_created", autoCreated))
	return svc, nil
}

// CreatePluginService explicitly registers a plugin service
func (r *Registry) CreatePluginService(name string) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createPluginService(name, false)
}

// GetPluginService returns the plugin service with the given name.
// When raiseOnNotExists is set, a missing plugin yields a query error
// instead of nil.
func (r *Registry) GetPluginService(name string, raiseOnNotExists bool) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if svc, ok := r.root.children[name]; ok {
		return svc, nil
	}
	if raiseOnNotExists {
		return nil, acerrors.ErrQuery.WithMsgf("service not found: %s", name)
	}
	return nil, nil
}

// GetOrCreatePluginService is the idempotent lookup-or-create used by
// the auto-patch startup routine. Creation consults the plugin
// discovery first; an unknown plugin is a query error.
func (r *Registry) GetOrCreatePluginService(name string) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc, ok := r.root.children[name]; ok {
		return svc, nil
	}
	if r.discovery == nil || !r.discovery.HasPlugin(name) {
		return nil, acerrors.ErrQuery.WithMsgf("no such plugin: %s", name)
	}
	return r.createPluginService(name, true)
}

// GetServiceByQualifiedName walks the dotted path from the root.
// Returns nil (or a query error when raiseOnNotExists is set) on any
// missing segment.
func (r *Registry) GetServiceByQualifiedName(qualifiedName string, raiseOnNotExists bool) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if qualifiedName == RootName {
		return r.root, nil
	}

	segs := strings.Split(qualifiedName, ".")
	node := r.root.children[segs[0]]
	for i := 1; i < len(segs) && node != nil; i++ {
		node = node.GetChild(segs[i])
	}

	if node == nil {
		if raiseOnNotExists {
			return nil, acerrors.ErrQuery.WithMsgf("service not found: %s", qualifiedName)
		}
		return nil, nil
	}
	return node, nil
}
