package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/app"
	"reviewpulse/internal/domain"
	"reviewpulse/internal/enrich"
	"reviewpulse/internal/ratelimit"
	"reviewpulse/internal/storage/sqlrepo"
)

type stubProvider struct {
	p    domain.Platform
	raws []domain.RawReview
	err  error
}

func (s *stubProvider) Platform() domain.Platform { return s.p }
func (s *stubProvider) Validate(_ domain.Credentials, src domain.Source) error {
	if src.ExternalID == "" {
		return &domain.ConfigError{Platform: s.p, Field: "external_id", Reason: "missing"}
	}
	return nil
}
func (s *stubProvider) Fetch(context.Context, domain.Credentials, domain.Source) (domain.FetchResult, error) {
	return domain.FetchResult{Reviews: s.raws}, s.err
}

type okClassifier struct{}

func (okClassifier) Classify(context.Context, domain.AnalysisInput) (domain.AnalysisResult, error) {
	return domain.AnalysisResult{Sentiment: domain.SentimentNeutral, Language: "en"}, nil
}

type conf struct{}

func (conf) Cooldown(p domain.Platform) time.Duration {
	if p == domain.PlatformYelp {
		return 24 * time.Hour
	}
	return 0
}
func (conf) Credentials(domain.Platform) domain.Credentials { return domain.Credentials{APIKey: "k"} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlrepo.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := sqlrepo.New(db, sqlrepo.SQLite)
	ctx := context.Background()
	if err := repo.SaveBusiness(ctx, "b1", "Joe's Diner"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []domain.Platform{domain.PlatformYelp, domain.PlatformGoogle, domain.PlatformReddit} {
		if err := repo.SaveSource(ctx, domain.Source{BusinessID: "b1", Platform: p, ExternalID: "ext-" + string(p)}); err != nil {
			t.Fatal(err)
		}
	}

	yelp := &stubProvider{p: domain.PlatformYelp, raws: []domain.RawReview{
		{ExternalID: "y1", RatingRaw: "5", BodyText: "great"},
		{ExternalID: "y2", RatingRaw: "3", BodyText: "ok"},
	}}
	google := &stubProvider{p: domain.PlatformGoogle, err: provider.Wrap(domain.PlatformGoogle, "fetch", provider.ErrForbidden)}
	// reddit has a source but no adapter

	engine := enrich.NewEngine(okClassifier{}, repo, enrich.Config{BatchSize: 5})
	syncSvc := app.NewSyncService(app.SyncDeps{
		Providers: provider.NewRegistry(yelp, google),
		Creds:     conf{},
		Cooldowns: conf{},
		Repo:      repo,
		Limiter:   ratelimit.New(repo),
		Engine:    engine,
	})

	srv := New(time.Minute)
	srv.MountHandlers(&Handlers{
		Sync:     syncSvc,
		Analysis: app.NewAnalysisService(repo, engine, nil),
		Q:        app.NewQueryService(repo, nil, time.Minute),
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestSyncPlatform_OKThenRateLimited(t *testing.T) {
	ts := newTestServer(t)
	url := ts.URL + "/v1/businesses/b1/platforms/yelp/sync"

	res := post(t, url, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var run domain.SyncRun
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		t.Fatal(err)
	}
	if run.State != domain.StateDone || run.NewCount != 2 || run.EnrichedCount != 2 {
		t.Fatalf("run = %+v", run)
	}

	res = post(t, url, "")
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status %d", res.StatusCode)
	}
	ra, err := strconv.Atoi(res.Header.Get("Retry-After"))
	if err != nil || ra <= 0 || ra > 24*3600+1 {
		t.Fatalf("Retry-After = %q", res.Header.Get("Retry-After"))
	}
	var p problem
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Run == nil || p.Run.State != domain.StateRateLimited || p.Run.NextAvailableAt == nil {
		t.Fatalf("problem = %+v", p)
	}
}

func TestSyncPlatform_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	cases := []struct {
		path string
		want int
	}{
		{"/v1/businesses/b1/platforms/google/sync", http.StatusBadGateway},
		{"/v1/businesses/b1/platforms/reddit/sync", http.StatusUnprocessableEntity},
		{"/v1/businesses/nobody/platforms/yelp/sync", http.StatusUnprocessableEntity},
		{"/v1/businesses/b1/platforms/myspace/sync", http.StatusNotFound},
	}
	for _, tc := range cases {
		res := post(t, ts.URL+tc.path, "")
		if res.StatusCode != tc.want {
			t.Errorf("%s: status %d, want %d", tc.path, res.StatusCode, tc.want)
		}
		if ct := res.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Errorf("%s: content type %q", tc.path, ct)
		}
	}
}

func TestSyncAll_ReportsPerPlatformStatus(t *testing.T) {
	ts := newTestServer(t)
	res := post(t, ts.URL+"/v1/businesses/b1/sync", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var body struct {
		Results []syncAllResult `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	got := map[domain.Platform]int{}
	for _, r := range body.Results {
		got[r.Platform] = r.Status
	}
	want := map[domain.Platform]int{
		domain.PlatformYelp:   http.StatusOK,
		domain.PlatformGoogle: http.StatusBadGateway,
		domain.PlatformReddit: http.StatusUnprocessableEntity,
	}
	for p, st := range want {
		if got[p] != st {
			t.Errorf("%s: status %d, want %d", p, got[p], st)
		}
	}

	if res := post(t, ts.URL+"/v1/businesses/b1/sync", `{"platforms":["friendster"]}`); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown platform in body: status %d", res.StatusCode)
	}
}

func TestListReviews_ETagAndLimit(t *testing.T) {
	ts := newTestServer(t)
	post(t, ts.URL+"/v1/businesses/b1/platforms/yelp/sync", "")

	res, err := http.Get(ts.URL + "/v1/businesses/b1/reviews?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var page app.ReviewPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Items[0].Enrichment == nil {
		t.Fatalf("page = %+v", page)
	}
	etag := res.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/businesses/b1/reviews?limit=10", nil)
	req.Header.Set("If-None-Match", etag)
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional GET status %d", res2.StatusCode)
	}

	res3, err := http.Get(ts.URL + "/v1/businesses/b1/reviews?limit=999")
	if err != nil {
		t.Fatal(err)
	}
	res3.Body.Close()
	if res3.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", res3.StatusCode)
	}
}

func TestAnalyzeMissing_Endpoint(t *testing.T) {
	ts := newTestServer(t)
	res := post(t, ts.URL+"/v1/businesses/b1/analyze-missing?limit=5", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var body map[string]int
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if n, ok := body["analyzed"]; !ok || n != 0 {
		t.Fatalf("body = %+v", body)
	}
	if res := post(t, ts.URL+"/v1/businesses/b1/analyze-missing?limit=0", ""); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0 status %d", res.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&domain.RateLimitedError{Platform: domain.PlatformYelp}, 429},
		{&domain.ConfigError{Platform: domain.PlatformYelp}, 422},
		{&domain.ProviderError{Provider: domain.PlatformYelp, Err: errors.New("x")}, 502},
		{&domain.StorageError{Op: "upsert", Err: errors.New("x")}, 500},
		{context.DeadlineExceeded, 504},
		{errors.New("other"), 500},
	}
	for _, tc := range cases {
		if got, _ := statusFor(tc.err); got != tc.want {
			t.Errorf("%v: %d, want %d", tc.err, got, tc.want)
		}
	}
}
