package tripadvisor_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/adapters/tripadvisor"
	"reviewpulse/internal/domain"
)

func TestLocationID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1234567", "1234567", true},
		{"https://www.tripadvisor.com/Restaurant_Review-g60763-d1234567-Reviews-Joes-New_York.html", "1234567", true},
		{" 42 ", "42", true},
		{"https://example.com/joes", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := tripadvisor.LocationID(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("LocationID(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestFetch_PagesUntilShortPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/location/1234567/reviews" || r.URL.Query().Get("key") != "k" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		var items []string
		for i := offset; i < offset+2 && i < 3; i++ {
			reply := ""
			if i == 0 {
				reply = `,"owner_response":{"text":"Thank you!","published_date":"2024-05-02T08:00:00Z"}`
			}
			items = append(items, fmt.Sprintf(`{"id":%d,"url":"https://ta/r/%d","rating":%d,"title":"T%d","text":"body %d",
				"published_date":"2024-05-01T10:00:00Z","user":{"username":"u%d","avatar":{"small":"https://ta/a/%d"}}%s}`,
				900+i, i, 5-i, i, i, i, i, reply))
		}
		fmt.Fprintf(w, `{"data":[%s]}`, strings.Join(items, ","))
	}))
	defer ts.Close()

	a := tripadvisor.New(provider.NewClient("tripadvisor", provider.Options{RPS: 100, Attempts: 1}),
		tripadvisor.Config{Base: ts.URL, PageSize: 2})
	src := domain.Source{ExternalID: "https://www.tripadvisor.com/Hotel_Review-g1-d1234567-Reviews-X.html"}
	res, err := a.Fetch(context.Background(), domain.Credentials{APIKey: "k"}, src)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Reviews) != 3 || res.Warning != "" {
		t.Fatalf("got %d reviews, warning %q", len(res.Reviews), res.Warning)
	}
	r := res.Reviews[0]
	if r.ExternalID != "900" || r.RatingRaw != "5" || r.BodyText != "T0\n\nbody 0" {
		t.Fatalf("unexpected mapping: %+v", r)
	}
	if r.ReplyText == nil || *r.ReplyText != "Thank you!" || r.RepliedAt == nil {
		t.Fatalf("owner response not mapped: %+v", r)
	}
	if res.Reviews[1].ReplyText != nil || res.Reviews[1].AuthorAvatarURL == nil {
		t.Fatalf("optional fields mis-mapped: %+v", res.Reviews[1])
	}
}

func TestFetch_APIErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid key","type":"AuthError","code":1}}`))
	}))
	defer ts.Close()

	a := tripadvisor.New(provider.NewClient("tripadvisor", provider.Options{RPS: 100, Attempts: 1}), tripadvisor.Config{Base: ts.URL})
	_, err := a.Fetch(context.Background(), domain.Credentials{APIKey: "k"}, domain.Source{ExternalID: "1"})
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || !strings.Contains(err.Error(), "Invalid key") {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	a := tripadvisor.New(provider.NewClient("tripadvisor", provider.Options{}), tripadvisor.Config{})
	var ce *domain.ConfigError
	if err := a.Validate(domain.Credentials{APIKey: "k"}, domain.Source{ExternalID: "joes"}); !errors.As(err, &ce) || ce.Field != "location_id" {
		t.Fatalf("expected location_id error, got %v", err)
	}
}
