package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/sitesearch/internal/db"
)

// SearchIDs runs a scored text search that returns keys only, via
// FT.SEARCH ... NOCONTENT WITHSCORES.
func (s *Store) SearchIDs(ctx context.Context, q *db.IDQuery) (*db.IDResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if q.Offset < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("invalid window %d+%d", q.Offset, q.Limit)
	}

	args := []string{
		q.IndexName, buildQuery(q.Text, q.Tags),
		"NOCONTENT", "WITHSCORES",
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseIDResult(raw)
}

// IndexInfo reads the document count of an index via FT.INFO.
func (s *Store) IndexInfo(ctx context.Context, name string) (*db.IndexStats, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	m, err := s.do(ctx, cmd).AsMap()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	stats := &db.IndexStats{Name: name}
	if v, ok := m["num_docs"]; ok {
		n, err := v.AsFloat64()
		if err != nil {
			return nil, fmt.Errorf("parse num_docs: %w", err)
		}
		stats.NumDocs = uint64(max(n, 0))
	}
	return stats, nil
}

// --- Result parsing ---

func parseIDResult(raw []rueidis.RedisMessage) (*db.IDResult, error) {
	if len(raw) == 0 {
		return &db.IDResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.IDResult{}, nil
	}

	entries := make([]db.IDEntry, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, score1, key2, score2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		score, err := raw[i+1].AsFloat64()
		if err != nil {
			continue
		}

		entries = append(entries, db.IDEntry{Key: key, Score: score})
	}

	return &db.IDResult{Total: total, Entries: entries}, nil
}

// --- Query building ---

// buildQuery combines the escaped text terms with the tag filters.
// Values of one tag filter are ORed, filters are ANDed.
func buildQuery(text string, tags []db.TagFilter) string {
	var parts []string

	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, escapeQuery(t))
	}

	for _, tf := range tags {
		if f := buildTagFilter(tf.Field, tf.Values); f != "" {
			parts = append(parts, f)
		}
	}

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

func buildTagFilter(key string, values []string) string {
	escaped := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		escaped = append(escaped, tagEscaper.Replace(v))
	}
	if len(escaped) == 0 {
		return ""
	}
	return fmt.Sprintf("@%s:{%s}", key, strings.Join(escaped, " | "))
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"/", "\\/",
	"|", "\\|",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)
