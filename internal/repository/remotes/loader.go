// Package remotes loads the list of remote URL templates a federated node
// queries.
package remotes

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const s3Scheme = "s3://"

// ErrNoTemplates is returned when a remotes list has no entries.
var ErrNoTemplates = errors.New("remotes list is empty")

// S3Config selects the S3 endpoint used for s3:// locations.
type S3Config struct {
	Region   string
	Endpoint string
}

// Loader reads remotes lists from local files or S3 objects.
type Loader struct {
	s3         s3iface.S3API
	newS3      func() (s3iface.S3API, error)
	maxElapsed time.Duration
	logger     *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithS3 sets the S3 client used for s3:// locations.
func WithS3(api s3iface.S3API) Option {
	return func(l *Loader) { l.s3 = api }
}

// WithS3Config creates the S3 client on first use from cfg.
func WithS3Config(cfg S3Config) Option {
	return func(l *Loader) {
		l.newS3 = func() (s3iface.S3API, error) { return NewS3(cfg) }
	}
}

// WithMaxElapsed bounds the retries of a remote fetch (default 30s).
func WithMaxElapsed(d time.Duration) Option {
	return func(l *Loader) { l.maxElapsed = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) { l.logger = log }
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		maxElapsed: 30 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewS3 creates an S3 client for cfg. An empty region means "us-east-1".
func NewS3(cfg S3Config) (s3iface.S3API, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg := &aws.Config{Region: aws.String(region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}
	return s3.New(sess), nil
}

// Load reads the templates at location: a local path or s3://bucket/key.
func (l *Loader) Load(ctx context.Context, location string) ([]string, error) {
	var (
		templates []string
		err       error
	)
	if strings.HasPrefix(location, s3Scheme) {
		templates, err = l.loadS3(ctx, location)
	} else {
		templates, err = loadFile(location)
	}
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("%s: %w", location, ErrNoTemplates)
	}
	l.logger.Info("remotes loaded", zap.String("location", location), zap.Int("count", len(templates)))
	return templates, nil
}

// Parse reads one template per line. Blank lines and lines starting with
// "#" are skipped.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read remotes: %w", err)
	}
	return out, nil
}

func loadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open remotes file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func (l *Loader) loadS3(ctx context.Context, location string) ([]string, error) {
	bucket, key, err := splitS3(location)
	if err != nil {
		return nil, err
	}
	api, err := l.client()
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = l.maxElapsed

	var templates []string
	op := func() error {
		out, err := api.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			l.logger.Warn("remotes fetch failed, retrying", zap.String("location", location), zap.Error(err))
			return err
		}
		defer out.Body.Close()

		templates, err = Parse(out.Body)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	return templates, nil
}

func (l *Loader) client() (s3iface.S3API, error) {
	if l.s3 != nil {
		return l.s3, nil
	}
	newS3 := l.newS3
	if newS3 == nil {
		newS3 = func() (s3iface.S3API, error) { return NewS3(S3Config{}) }
	}
	api, err := newS3()
	if err != nil {
		return nil, err
	}
	l.s3 = api
	return api, nil
}

func splitS3(location string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(location, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 location %q: want s3://bucket/key", location)
	}
	return bucket, key, nil
}

func permanent(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "AccessDenied", "InvalidBucketName":
		return true
	}
	return false
}
