// Package service implements the addressable tree of access-control
// units: one root node for the whole bot instance, one plugin node per
// loaded plugin, and arbitrarily nested subservices below them
//
// The tree is an in-memory, process-lifetime structure: it is built
// during plugin load, mutated only before request traffic starts, and
// never persisted. Only permission and rate-limit configuration keyed
// by qualified name survives restarts.
package service

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/acerrors"
	"github.com/KOMKZ/go-accessctl-framework/logger"
)

// Kind distinguishes the service variants
type Kind string

const (
	// KindRoot the single well-known root node
	KindRoot Kind = "root"

	// KindPlugin a root-level child representing one loaded plugin
	KindPlugin Kind = "plugin"

	// KindSub a nested subservice, recursively containable
	KindSub Kind = "sub"
)

var nameRe = regexp.MustCompile(`^[A-Za-z_]\w*$`)

// Service one node of the tree. It owns only tree shape; permission
// and rate-limit behavior live in the composed engines, which take the
// node as an argument.
type Service struct {
	name        string
	kind        Kind
	parent      *Service
	children    map[string]*Service
	order       []string // child names in creation order
	autoCreated bool

	log *logger.CtxZapLogger
}

func newService(name string, kind Kind, parent *Service, autoCreated bool) *Service {
	return &Service{
		name:        name,
		kind:        kind,
		parent:      parent,
		children:    make(map[string]*Service),
		autoCreated: autoCreated,
		log:         logger.GetLogger("service"),
	}
}

// Name returns the local identifier
func (s *Service) Name() string {
	return s.name
}

// Kind returns the variant tag
func (s *Service) Kind() Kind {
	return s.kind
}

// Parent returns the parent node, nil for the root
func (s *Service) Parent() *Service {
	return s.parent
}

// AutoCreated reports whether this plugin node was created implicitly
// by the auto-patch startup routine rather than explicit registration
func (s *Service) AutoCreated() bool {
	return s.autoCreated
}

// QualifiedName returns the dot-joined path from the root, excluding
// the root's own synthetic name. The root returns its own name.
func (s *Service) QualifiedName() string {
	if s.kind == KindRoot {
		return s.name
	}

	var segs []string
	for node := s; node != nil && node.kind != KindRoot; node = node.parent {
		segs = append(segs, node.name)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, ".")
}

// String implements fmt.Stringer
func (s *Service) String() string {
	return s.QualifiedName()
}

// Children returns the direct children in creation order
func (s *Service) Children() []*Service {
	out := make([]*Service, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.children[name])
	}
	return out
}

// GetChild returns the direct child with the given local name, or nil
func (s *Service) GetChild(name string) *Service {
	return s.children[name]
}

// FindByName searches self and all descendants for a node with the
// given local name, returning the first pre-order match or nil
func (s *Service) FindByName(name string) *Service {
	for _, node := range s.Travel() {
		if node.name == name {
			return node
		}
	}
	return nil
}

// CreateSubservice validates the name, checks sibling collision, then
// constructs and registers a child node
func (s *Service) CreateSubservice(name string) (*Service, error) {
	if !nameRe.MatchString(name) {
		return nil, acerrors.ErrBadRequest.WithMsgf("invalid service name: %s", name)
	}
	if _, exists := s.children[name]; exists {
		return nil, acerrors.ErrBadRequest.WithMsgf(
			"subservice already exists: %s.%s", s.QualifiedName(), name)
	}

	child := newService(name, KindSub, s, false)
	s.children[name] = child
	s.order = append(s.order, name)

	s.log.Debug("created subservice",
		zap.String("service", child.QualifiedName()),
		zap.String("parent", s.QualifiedName()))
	return child, nil
}

// MustCreateSubservice is CreateSubservice panicking on error, for
// plugin registration code that runs at load time
func (s *Service) MustCreateSubservice(name string) *Service {
	child, err := s.CreateSubservice(name)
	if err != nil {
		panic(err)
	}
	return child
}

// Travel returns self and all descendants in stack-based pre-order
// depth-first order (not necessarily left-to-right stable)
func (s *Service) Travel() []*Service {
	var out []*Service
	stack := []*Service{s}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, top)
		stack = append(stack, top.Children()...)
	}
	return out
}

// Trace returns the ancestor chain from self up to the root inclusive
func (s *Service) Trace() []*Service {
	var out []*Service
	for node := s; node != nil; node = node.parent {
		out = append(out, node)
	}
	return out
}
