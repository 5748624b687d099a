package opensearch

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/sitesearch/internal/domain/search/request"
)

var (
	optionalParamRe = regexp.MustCompile(`\{[^}]+?\}`)
	repeatedAmpRe   = regexp.MustCompile(`&{2,}`)
)

// templateGroups lists the filter groups expandable as {param=group}, in expansion order.
var templateGroups = []string{
	request.GroupSites,
	request.GroupIndexNames,
	request.GroupCollections,
	request.GroupTypes,
	request.GroupDates,
	request.GroupExcludes,
}

// Expand expands an OpenSearch URL template with the query parameters.
//
// {searchTerms}, {startIndex}, {count} and {hitsPerSite} are substituted;
// {param=group} becomes param=v1&param=v2 for every value of the group, in
// order. Tokens left over (optional ones included) are removed, then runs of
// '&' are collapsed and trailing '&' trimmed.
func Expand(template string, p request.Params) string {
	u := template
	u = strings.ReplaceAll(u, "{searchTerms}", escape(p.Query()))
	u = strings.ReplaceAll(u, "{startIndex}", strconv.Itoa(p.Start()))
	u = strings.ReplaceAll(u, "{count}", strconv.Itoa(p.PageSize()))
	u = strings.ReplaceAll(u, "{hitsPerSite}", strconv.Itoa(p.PerGroupCap()))

	for _, group := range templateGroups {
		values, _ := p.Group(group)
		u = expandGroup(u, group, values)
	}

	u = optionalParamRe.ReplaceAllString(u, "")
	u = repeatedAmpRe.ReplaceAllString(u, "&")
	return strings.TrimRight(u, "&")
}

// expandGroup replaces every {param=group} token with one param=value pair per value.
func expandGroup(u, group string, values []string) string {
	key := "=" + group + "}"
	for {
		end := strings.Index(u, key)
		if end < 0 {
			return u
		}
		open := strings.LastIndexByte(u[:end], '{')
		if open < 0 {
			return u
		}
		param := u[open+1 : end]

		var b strings.Builder
		for i, v := range values {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(param)
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
		u = u[:open] + b.String() + u[end+len(key):]
	}
}

// escape percent-encodes a query component, spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
