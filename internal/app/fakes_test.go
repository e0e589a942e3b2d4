package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"reviewpulse/internal/domain"
)

type fakeProvider struct {
	platform domain.Platform
	mu       sync.Mutex
	raws     []domain.RawReview
	warning  string
	err      error
	calls    atomic.Int32

	// when set, Fetch reports on entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (f *fakeProvider) Platform() domain.Platform { return f.platform }

func (f *fakeProvider) Validate(creds domain.Credentials, src domain.Source) error {
	if src.ExternalID == "" {
		return &domain.ConfigError{Platform: f.platform, Field: "external_id", Reason: "missing"}
	}
	return nil
}

func (f *fakeProvider) Fetch(ctx context.Context, creds domain.Credentials, src domain.Source) (domain.FetchResult, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.FetchResult{}, f.err
	}
	return domain.FetchResult{Reviews: append([]domain.RawReview(nil), f.raws...), Warning: f.warning}, nil
}

func (f *fakeProvider) set(raws []domain.RawReview, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raws, f.err = raws, err
}

type registry map[domain.Platform]domain.ReviewProvider

func (r registry) Get(p domain.Platform) (domain.ReviewProvider, bool) {
	a, ok := r[p]
	return a, ok
}

type staticConfig map[domain.Platform]time.Duration

func (c staticConfig) Cooldown(p domain.Platform) time.Duration { return c[p] }
func (c staticConfig) Credentials(domain.Platform) domain.Credentials {
	return domain.Credentials{APIKey: "k"}
}

// memRepo mimics the SQL store's upsert rules in memory.
type memRepo struct {
	mu        sync.Mutex
	rows      map[string]*domain.Review // by platform/key
	sources   map[string]domain.Source  // by business/platform
	upsertErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]*domain.Review{}, sources: map[string]domain.Source{}}
}

func (m *memRepo) addSource(biz string, p domain.Platform, ext string) {
	m.sources[biz+"/"+string(p)] = domain.Source{BusinessID: biz, BusinessName: "Joe's", Platform: p, ExternalID: ext}
}

func (m *memRepo) Upsert(_ context.Context, rs []domain.Review) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res domain.UpsertResult
	if m.upsertErr != nil {
		return res, m.upsertErr
	}
	for _, rv := range rs {
		k := string(rv.Platform) + "/" + rv.PlatformReviewID
		cur, ok := m.rows[k]
		if !ok {
			cp := rv
			m.rows[k] = &cp
			res.InsertedIDs = append(res.InsertedIDs, rv.ID)
			continue
		}
		cur.Rating, cur.BodyText = rv.Rating, rv.BodyText
		if rv.HasResponse {
			cur.HasResponse, cur.ResponseText, cur.RespondedAt = true, rv.ResponseText, rv.RespondedAt
		}
		res.UpdatedIDs = append(res.UpdatedIDs, cur.ID)
	}
	return res, nil
}

func (m *memRepo) ApplyAnalysis(_ context.Context, id string, a domain.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			r.Enrichment = &domain.Enrichment{Sentiment: a.Sentiment, SentimentScore: a.SentimentScore,
				Keywords: a.Keywords, Categories: a.Categories, Language: a.Language, IsSpam: a.IsSpam, AnalyzedAt: time.Now()}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memRepo) list(biz string, onlyPending bool, limit int) []domain.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Review
	for _, r := range m.rows {
		if r.BusinessID == biz && (!onlyPending || r.Enrichment == nil) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformReviewID < out[j].PlatformReviewID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memRepo) ListUnanalyzed(_ context.Context, biz string, limit int) ([]domain.Review, error) {
	return m.list(biz, true, limit), nil
}

func (m *memRepo) ListReviews(_ context.Context, biz string, limit int) ([]domain.Review, error) {
	return m.list(biz, false, limit), nil
}

func (m *memRepo) GetSource(_ context.Context, biz string, p domain.Platform) (domain.Source, error) {
	s, ok := m.sources[biz+"/"+string(p)]
	if !ok {
		return domain.Source{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memRepo) ListSources(_ context.Context, biz string) ([]domain.Source, error) {
	var out []domain.Source
	for _, s := range m.sources {
		if biz == "" || s.BusinessID == biz {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (m *memRepo) byKey(p domain.Platform, key string) *domain.Review {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[string(p)+"/"+key]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

type memWindows struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (w *memWindows) LastSynced(_ context.Context, b string, p domain.Platform) (time.Time, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.m[b+"/"+string(p)]
	return t, ok, nil
}

func (w *memWindows) MarkSynced(_ context.Context, b string, p domain.Platform, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.m == nil {
		w.m = map[string]time.Time{}
	}
	if k := b + "/" + string(p); at.After(w.m[k]) {
		w.m[k] = at
	}
	return nil
}

type fakeClassifier struct {
	fail  map[string]bool
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(_ context.Context, in domain.AnalysisInput) (domain.AnalysisResult, error) {
	f.calls.Add(1)
	if f.fail[in.Text] {
		return domain.AnalysisResult{}, errors.New("model timeout")
	}
	return domain.AnalysisResult{Sentiment: domain.SentimentPositive, SentimentScore: 0.6, Language: "en",
		Keywords: []string{"service"}, Categories: []string{"staff"}}, nil
}

// fakeCache round-trips values through JSON like the redis cache does.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(_ context.Context, key string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

type fakeEvents struct {
	mu   sync.Mutex
	runs []domain.SyncRun
}

func (e *fakeEvents) PublishSyncRun(_ context.Context, r domain.SyncRun) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, r)
	return nil
}

func raw(id string, rating string, body string) domain.RawReview {
	return domain.RawReview{ExternalID: id, AuthorName: "Ana", RatingRaw: rating, BodyText: body,
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func raws(n int, prefix string) []domain.RawReview {
	out := make([]domain.RawReview, n)
	for i := range out {
		out[i] = raw(fmt.Sprintf("%s%d", prefix, i+1), "5", fmt.Sprintf("%s review %d", prefix, i+1))
	}
	return out
}
