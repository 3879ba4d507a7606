package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

// fakeRecordStore is an in-memory RecordStore that counts calls.
type fakeRecordStore struct {
	mu      sync.Mutex
	records []types.Record
	today   time.Time
	err     error

	fetchCalls atomic.Int32
	rangeCalls atomic.Int32

	// block, when set, holds FetchRecords until it is closed.
	block chan struct{}
}

func (f *fakeRecordStore) FetchRecords(ctx context.Context, maxCount int) ([]types.Record, error) {
	f.fetchCalls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := len(f.records)
	if maxCount < n {
		n = maxCount
	}
	return append([]types.Record(nil), f.records[:n]...), nil
}

func (f *fakeRecordStore) FetchRecordsInRange(_ context.Context, start, end time.Time, limit int) ([]types.Record, error) {
	f.rangeCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []types.Record{}
	for _, r := range f.records {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRecordStore) Today() time.Time { return f.today }

func (f *fakeRecordStore) Close() error { return nil }

func (f *fakeRecordStore) setRecords(records []types.Record) {
	f.mu.Lock()
	f.records = records
	f.mu.Unlock()
}

// memSummaryStore is an in-memory SummaryStore.
type memSummaryStore struct {
	mu        sync.Mutex
	summaries map[string]types.Summary
	puts      int
	putErr    error
}

func newMemSummaryStore() *memSummaryStore {
	return &memSummaryStore{summaries: make(map[string]types.Summary)}
}

func (m *memSummaryStore) Get(_ context.Context, key string) (*types.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[key]
	if !ok {
		return nil, fmt.Errorf("summary %s: %w", key, storage.ErrNotFound)
	}
	return &s, nil
}

func (m *memSummaryStore) Put(_ context.Context, s *types.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.summaries[s.ID] = *s
	return nil
}

func (m *memSummaryStore) List(context.Context, storage.SummaryFilter) ([]*types.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Summary, 0, len(m.summaries))
	for _, s := range m.summaries {
		s := s
		out = append(out, &s)
	}
	return out, nil
}

// fakeGenerator returns scripted responses and records prompts.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (g *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return `{"summary":"穏やかに過ごされた。","keyInsights":["食事は完食"]}`, nil
	}
	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return resp, nil
}

func (g *fakeGenerator) GetModel() string { return "fake-model" }

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// jst builds a facility-local timestamp.
func jst(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, types.FacilityLocation)
}

func rec(id string, cat types.Category, ts time.Time, fields map[string]string) types.Record {
	return types.Record{ID: id, Category: cat, Timestamp: ts, Fields: fields}
}
