package query

import (
	"net/url"
	"reflect"
	"testing"

	"github.com/urlqueue/urlqueue/internal/job"
)

func TestBuild(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		criteria Criteria
		cursor   int64
		want     url.Values
	}{
		{"defaults at head", Criteria{}, 0, url.Values{}},
		{"all filter omitted", Criteria{Status: StatusAll}, 0, url.Values{}},
		{"blank search omitted", Criteria{Search: "   "}, 0, url.Values{}},
		{"status filter", Criteria{Status: "success"}, 0, url.Values{"status": {"success"}}},
		{"search trimmed", Criteria{Search: " cats "}, 0, url.Values{"q": {"cats"}}},
		{"cursor", Criteria{}, 5, url.Values{"cursor": {"5"}}},
		{"limit", Criteria{Limit: 20}, 0, url.Values{"limit": {"20"}}},
		{
			"everything",
			Criteria{Status: "failure", Search: "yt", Limit: 3},
			42,
			url.Values{"status": {"failure"}, "q": {"yt"}, "cursor": {"42"}, "limit": {"3"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Build(tt.criteria, tt.cursor)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Build() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuild_PaginationDiffersOnlyByCursor(t *testing.T) {
	t.Parallel()
	c := Criteria{Status: "pending", Search: "music", Limit: 10}
	head := Build(c, 0)
	next := Build(c, 17)

	next.Del("cursor")
	if !reflect.DeepEqual(head, next) {
		t.Errorf("head %v and next page %v describe different filter spaces", head, next)
	}
}

func TestNormalize_EquivalentCriteriaCompareEqual(t *testing.T) {
	t.Parallel()
	a := Criteria{Status: "", Search: " x"}.Normalize()
	b := Criteria{Status: StatusAll, Search: "x "}.Normalize()
	if a != b {
		t.Errorf("%+v != %+v", a, b)
	}
}

func TestCriteriaValidate(t *testing.T) {
	t.Parallel()
	if err := (Criteria{Status: "queued"}).Validate(); err == nil {
		t.Error("expected error for unknown status")
	}
	if err := (Criteria{Limit: 1000}).Validate(); err == nil {
		t.Error("expected error for limit above maximum")
	}
	if err := (Criteria{Status: "processing", Limit: 50}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	p, err := Parse(url.Values{
		"status": {"success,failure"},
		"q":      {" abc "},
		"cursor": {"9"},
		"limit":  {"500"},
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := &Params{
		Status: []job.Status{job.StatusSuccess, job.StatusFailure},
		Search: "abc",
		Cursor: 9,
		Limit:  MaxLimit,
	}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("Parse() = %+v, want %+v", p, want)
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	p, err := Parse(url.Values{"status": {"all"}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Status != nil || p.Cursor != 0 || p.Limit != DefaultLimit {
		t.Errorf("Parse() = %+v, want no filter, head cursor, default limit", p)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []url.Values{
		{"status": {"queued"}},
		{"cursor": {"abc"}},
		{"cursor": {"-1"}},
		{"limit": {"-5"}},
	}
	for _, v := range tests {
		if _, err := Parse(v); err == nil {
			t.Errorf("Parse(%v) expected error", v)
		}
	}
}

func TestBuildThenParse(t *testing.T) {
	t.Parallel()
	c := Criteria{Status: "processing", Search: "vid", Limit: 25}
	p, err := Parse(Build(c, 88))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Status) != 1 || p.Status[0] != job.StatusProcessing {
		t.Errorf("Status = %v", p.Status)
	}
	if p.Search != "vid" || p.Cursor != 88 || p.Limit != 25 {
		t.Errorf("Parse(Build()) = %+v", p)
	}
}

func TestParseLogs(t *testing.T) {
	t.Parallel()
	p, err := ParseLogs(url.Values{"cursor": {"12"}})
	if err != nil {
		t.Fatalf("ParseLogs: %v", err)
	}
	if p.Cursor != 12 {
		t.Errorf("Cursor = %d, want 12", p.Cursor)
	}
	if _, err := ParseLogs(url.Values{"cursor": {"x"}}); err == nil {
		t.Error("expected error for invalid cursor")
	}
}
