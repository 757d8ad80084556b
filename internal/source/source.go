// Package source loads model source text from a local file or S3.
//
// Example usage:
//
//	loader := source.NewLoader(source.WithEndpoint("http://localhost:4566"))
//	src, err := loader.Load(ctx, "s3://models/plant.go")
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	ErrEmptyURI          = errors.New("source: empty uri")
	ErrUnsupportedScheme = errors.New("source: unsupported scheme")
	ErrTooLarge          = errors.New("source: model source too large")
)

// DefaultMaxSize bounds the size of a model source.
const DefaultMaxSize = 4 << 20

// GetObjectAPI is the part of the S3 client the loader needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithS3Client sets the S3 client. Without it a client is created from the
// default credential chain on first use.
func WithS3Client(client GetObjectAPI) Option {
	return func(l *Loader) {
		l.client = client
	}
}

// WithEndpoint overrides the S3 endpoint, for LocalStack or MinIO.
// Path-style addressing is used when set.
func WithEndpoint(endpoint string) Option {
	return func(l *Loader) {
		l.endpoint = endpoint
	}
}

// WithRegion sets the AWS region used for the default client.
func WithRegion(region string) Option {
	return func(l *Loader) {
		l.region = region
	}
}

// WithMaxSize sets the maximum accepted source size in bytes.
func WithMaxSize(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// Loader reads model source by URI.
type Loader struct {
	endpoint string
	region   string
	maxSize  int64

	once   sync.Once
	client GetObjectAPI
	err    error
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the source at uri. A bare path or file:// URI is read from
// disk; s3://bucket/key is fetched with GetObject.
func (l *Loader) Load(ctx context.Context, uri string) (string, error) {
	if uri == "" {
		return "", ErrEmptyURI
	}

	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		return l.loadFile(uri)
	}
	switch scheme {
	case "file":
		return l.loadFile(rest)
	case "s3":
		u, err := url.Parse(uri)
		if err != nil || u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
			return "", fmt.Errorf("source: invalid s3 uri %q", uri)
		}
		return l.loadS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

func (l *Loader) loadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("source: %w", err)
	}
	defer f.Close()
	return l.read(f, path)
}

func (l *Loader) loadS3(ctx context.Context, bucket, key string) (string, error) {
	client, err := l.s3Client(ctx)
	if err != nil {
		return "", err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("source: get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > l.maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, *out.ContentLength)
	}
	return l.read(out.Body, "s3://"+bucket+"/"+key)
}

func (l *Loader) read(r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("source: read %s: %w", name, err)
	}
	if int64(len(data)) > l.maxSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, l.maxSize)
	}
	return string(data), nil
}

func (l *Loader) s3Client(ctx context.Context) (GetObjectAPI, error) {
	l.once.Do(func() {
		if l.client != nil {
			return
		}

		var opts []func(*config.LoadOptions) error
		if l.region != "" {
			opts = append(opts, config.WithRegion(l.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			l.err = fmt.Errorf("source: load aws config: %w", err)
			return
		}

		endpoint := l.endpoint
		l.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})
	})
	return l.client, l.err
}
