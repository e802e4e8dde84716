package exam

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	questions map[string]Question
	exams     map[string]Exam
	results   map[string]Result
	settings  Settings
}

// NewInMemoryStore returns a Store kept in process memory.
func NewInMemoryStore() Store {
	return &memoryStore{
		questions: map[string]Question{},
		exams:     map[string]Exam{},
		results:   map[string]Result{},
	}
}

func (m *memoryStore) PutQuestion(_ context.Context, q Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.Options = slices.Clone(q.Options)
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	q.Options = slices.Clone(q.Options)
	return q, nil
}

func (m *memoryStore) GetQuestions(_ context.Context, ids []string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := m.questions[id]; ok {
			q.Options = slices.Clone(q.Options)
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memoryStore) ListQuestions(_ context.Context, opts QuestionListOpts) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Question
	for _, q := range m.questions {
		if opts.Type != "" && q.Type != opts.Type ||
			opts.Subject != "" && q.Subject != opts.Subject ||
			opts.Topic != "" && q.Topic != opts.Topic ||
			opts.ClassLevel != "" && q.ClassLevel != opts.ClassLevel {
			continue
		}
		if opts.Q != "" && !containsFold(q.Title, opts.Q) && !containsFold(q.Content, opts.Q) {
			continue
		}
		q.Options = slices.Clone(q.Options)
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) DeleteQuestion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return ErrNotFound
	}
	delete(m.questions, id)
	return nil
}

func (m *memoryStore) PutExam(_ context.Context, e Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.QuestionIDs = slices.Clone(e.QuestionIDs)
	m.exams[e.ID] = e
	return nil
}

func (m *memoryStore) GetExam(_ context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrNotFound
	}
	e.QuestionIDs = slices.Clone(e.QuestionIDs)
	return e, nil
}

func (m *memoryStore) ListExams(_ context.Context, opts ExamListOpts) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Exam
	for _, e := range m.exams {
		if opts.ClassLevel != "" && e.ClassLevel != opts.ClassLevel {
			continue
		}
		if opts.Q != "" && !containsFold(e.Title, opts.Q) {
			continue
		}
		e.QuestionIDs = slices.Clone(e.QuestionIDs)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) DeleteExam(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[id]; !ok {
		return ErrNotFound
	}
	delete(m.exams, id)
	for rid, r := range m.results {
		if r.ExamID == id {
			delete(m.results, rid)
		}
	}
	return nil
}

func (m *memoryStore) CreateResult(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[r.ExamID]; !ok {
		return ErrNotFound
	}
	m.results[r.ID] = cloneResult(r)
	return nil
}

func (m *memoryStore) GetResult(_ context.Context, id string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return Result{}, ErrNotFound
	}
	return cloneResult(r), nil
}

func (m *memoryStore) GradeResult(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.results[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != StatusPending {
		return ErrAlreadyGraded
	}
	m.results[r.ID] = cloneResult(r)
	return nil
}

func (m *memoryStore) ListResults(_ context.Context, opts ResultListOpts) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Result
	for _, r := range m.results {
		if opts.ExamID != "" && r.ExamID != opts.ExamID ||
			opts.Status != "" && r.Status != opts.Status ||
			opts.UserIDs != nil && !slices.Contains(opts.UserIDs, r.UserID) {
			continue
		}
		out = append(out, cloneResult(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func (m *memoryStore) GetSettings(context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *memoryStore) PutSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func cloneResult(r Result) Result {
	r.Answers = maps.Clone(r.Answers)
	r.TheoryScores = maps.Clone(r.TheoryScores)
	if r.GradedAt != nil {
		t := *r.GradedAt
		r.GradedAt = &t
	}
	return r
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func page[T any](in []T, limit, offset int) []T {
	if limit <= 0 {
		return in
	}
	if offset >= len(in) {
		return nil
	}
	in = in[max(offset, 0):]
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}
