package learning

import (
	"context"
	"sync"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/matcher"
)

type extractorMock struct {
	extractFunc func(d domain.Detection) (domain.Signature, error)
}

func (m *extractorMock) Extract(d domain.Detection) (domain.Signature, error) {
	return m.extractFunc(d)
}

type termStoreMock struct {
	mu       sync.Mutex
	putCalls []*domain.ObjectTerm

	putFunc      func(ctx context.Context, t *domain.ObjectTerm) (*domain.ObjectTerm, error)
	getExactFunc func(ctx context.Context, language string, hash domain.PHash) (*domain.ObjectTerm, error)
}

func (m *termStoreMock) Put(ctx context.Context, t *domain.ObjectTerm) (*domain.ObjectTerm, error) {
	m.mu.Lock()
	m.putCalls = append(m.putCalls, t)
	m.mu.Unlock()
	if m.putFunc == nil {
		stored := *t
		return &stored, nil
	}
	return m.putFunc(ctx, t)
}

func (m *termStoreMock) GetExact(ctx context.Context, language string, hash domain.PHash) (*domain.ObjectTerm, error) {
	if m.getExactFunc == nil {
		return nil, domain.ErrNotFound
	}
	return m.getExactFunc(ctx, language, hash)
}

func (m *termStoreMock) PutCalls() []*domain.ObjectTerm {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ObjectTerm(nil), m.putCalls...)
}

type matcherMock struct {
	mu    sync.Mutex
	calls int

	findSimilarFunc func(ctx context.Context, sig domain.Signature, language string, threshold float64) (matcher.Result, error)
}

func (m *matcherMock) FindSimilar(ctx context.Context, sig domain.Signature, language string, threshold float64) (matcher.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.findSimilarFunc == nil {
		return matcher.Result{}, nil
	}
	return m.findSimilarFunc(ctx, sig, language, threshold)
}

func (m *matcherMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type reinforcerMock struct {
	recordTermOutcomeFunc func(ctx context.Context, key domain.TermKey, accepted bool) (*domain.ObjectTerm, error)
}

func (m *reinforcerMock) RecordTermOutcome(ctx context.Context, key domain.TermKey, accepted bool) (*domain.ObjectTerm, error) {
	return m.recordTermOutcomeFunc(ctx, key, accepted)
}
