package subject

import (
	"strings"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-accessctl-framework/logger"
)

// Extractor one stage of the subject resolution chain.
// It receives the session and the manager holding the subjects
// accumulated so far; it may append, splice, or replace.
type Extractor func(s *Session, m *Manager)

// Chain ordered list of extractors, run in registration order
type Chain struct {
	extractors []Extractor
	logger     *logger.CtxZapLogger
}

// NewChain creates an extractor chain
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{
		extractors: extractors,
		logger:     logger.GetLogger("subject"),
	}
}

// Add appends an extractor to the chain
func (c *Chain) Add(extractor Extractor) {
	c.extractors = append(c.extractors, extractor)
}

// ExtractModels runs the chain and returns the resolved subject models
func (c *Chain) ExtractModels(s *Session) []Model {
	m := NewManager()
	for _, ext := range c.extractors {
		ext(s, m)
		c.logger.Debug("current subjects",
			zap.String("subjects", strings.Join(Contents(m.Subjects()), ", ")))
	}
	return m.Subjects()
}

// Extract runs the chain and returns the subject identifiers in
// priority order, most specific first
func (c *Chain) Extract(s *Session) []string {
	return Contents(c.ExtractModels(s))
}
