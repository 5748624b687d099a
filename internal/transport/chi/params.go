package chi

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
	"github.com/kailas-cloud/sitesearch/internal/transport/rss"
)

// Query parameter names.
const (
	paramQuery       = "q"
	paramStart       = "p"
	paramPageSize    = "n"
	paramPerSite     = "h"
	paramSites       = "s"
	paramIndexNames  = "i"
	paramExcludes    = "x"
	paramCollections = "c"
	paramTypes       = "t"
	paramDates       = "d"
	paramFields      = "f"
)

// Defaults are the values used for missing or unparseable parameters.
type Defaults struct {
	PageSize    int
	PerGroupCap int
}

// parseParams reads the OpenSearch query surface. Missing, malformed and
// negative integers fall back to defaults.
func parseParams(v url.Values, d Defaults) (request.Params, error) {
	filters := request.Filters{
		Sites:       values(v, paramSites),
		IndexNames:  values(v, paramIndexNames),
		Excludes:    values(v, paramExcludes),
		Collections: values(v, paramCollections),
		Types:       values(v, paramTypes),
		Dates:       values(v, paramDates),
	}
	return request.New(
		strings.TrimSpace(v.Get(paramQuery)),
		intParam(v, paramStart, 0),
		intParam(v, paramPageSize, d.PageSize),
		intParam(v, paramPerSite, d.PerGroupCap),
		filters,
	)
}

func intParam(v url.Values, name string, def int) int {
	s := strings.TrimSpace(v.Get(name))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// values returns the non-empty values of a repeatable parameter. A value may
// also hold several comma-separated entries.
func values(v url.Values, name string) []string {
	var out []string
	for _, raw := range v[name] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// echoParams lists the request parameters sorted by name, keeping the order
// of repeated values.
func echoParams(v url.Values) []rss.Param {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []rss.Param
	for _, name := range names {
		for _, val := range v[name] {
			out = append(out, rss.Param{Name: name, Value: val})
		}
	}
	return out
}
