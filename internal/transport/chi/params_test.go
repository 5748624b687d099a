package chi

import (
	"errors"
	"net/url"
	"slices"
	"testing"

	"github.com/kailas-cloud/sitesearch/internal/domain"
	"github.com/kailas-cloud/sitesearch/internal/transport/rss"
)

func TestValues(t *testing.T) {
	v := url.Values{"s": {"a.org, b.org", "", " c.org ", ",,"}}
	got := values(v, "s")
	want := []string{"a.org", "b.org", "c.org"}
	if !slices.Equal(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}
	if got := values(v, "t"); got != nil {
		t.Errorf("missing param = %v, want nil", got)
	}
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 7},
		{"12", 12},
		{" 3 ", 3},
		{"0", 0},
		{"-2", 7},
		{"1e3", 7},
		{"abc", 7},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v := url.Values{"n": {tt.raw}}
			if got := intParam(v, "n", 7); got != tt.want {
				t.Errorf("intParam(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEchoParams(t *testing.T) {
	v := url.Values{
		"s": {"b.org", "a.org"},
		"q": {"war"},
		"h": {"2"},
	}
	got := echoParams(v)
	want := []rss.Param{
		{Name: "h", Value: "2"},
		{Name: "q", Value: "war"},
		{Name: "s", Value: "b.org"},
		{Name: "s", Value: "a.org"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("echoParams = %v, want %v", got, want)
	}
}

func TestParseParams_Invalid(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	_, err := parseParams(url.Values{"q": {string(long)}}, Defaults{PageSize: 10})
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestParseParams_Defaults(t *testing.T) {
	p, err := parseParams(url.Values{"q": {"  war  "}}, Defaults{PageSize: 25, PerGroupCap: 3})
	if err != nil {
		t.Fatal(err)
	}
	if p.Query() != "war" || p.PageSize() != 25 || p.PerGroupCap() != 3 || p.Start() != 0 {
		t.Errorf("params = q %q n %d h %d p %d", p.Query(), p.PageSize(), p.PerGroupCap(), p.Start())
	}
	if !p.AllIndexes() {
		t.Error("expected the default index list")
	}
}
