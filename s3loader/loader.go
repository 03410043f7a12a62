// Package s3loader stores bulk import streams as JSON lines objects in S3.
package s3loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/homemade/crmsync/sync"
)

// DefaultChunkSize is the number of records written to one object.
const DefaultChunkSize = 10000

// PutObjectAPI is the part of the S3 client the loader uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Loader implements sync.BulkLoader on top of S3.
type Loader struct {
	client    PutObjectAPI
	bucket    string
	prefix    string
	chunkSize int
	logger    *slog.Logger
}

type Option func(*Loader)

func WithChunkSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.chunkSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New builds a loader using the default AWS credential chain.
func New(ctx context.Context, bucket, prefix string, opts ...Option) (*Loader, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, prefix, opts...), nil
}

// NewWithClient builds a loader writing through client.
func NewWithClient(client PutObjectAPI, bucket, prefix string, opts ...Option) *Loader {
	l := &Loader{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		chunkSize: DefaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load drains records into objects of at most chunkSize lines each. It returns
// on the first failed upload without reading further records.
func (l *Loader) Load(ctx context.Context, kind sync.ImportKind, records <-chan sync.ImportRecord) ([]sync.ImportJob, error) {
	var jobs []sync.ImportJob
	var buf bytes.Buffer
	count := 0
	encoder := json.NewEncoder(&buf)

	flush := func() error {
		if count == 0 {
			return nil
		}
		job, err := l.put(ctx, kind, buf.Bytes(), count)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		buf.Reset()
		count = 0
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return jobs, ctx.Err()
		case rec, ok := <-records:
			if !ok {
				if err := flush(); err != nil {
					return jobs, err
				}
				return jobs, nil
			}
			if err := encoder.Encode(rec); err != nil {
				return jobs, fmt.Errorf("failed to encode %s record: %w", kind, err)
			}
			count++
			if count >= l.chunkSize {
				if err := flush(); err != nil {
					return jobs, err
				}
			}
		}
	}
}

func (l *Loader) put(ctx context.Context, kind sync.ImportKind, body []byte, count int) (sync.ImportJob, error) {
	id := uuid.NewString()
	key := path.Join(l.prefix, string(kind), id+".json")
	_, err := l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		l.logger.Error("import.chunk.error", "kind", kind, "key", key, "error", err)
		return sync.ImportJob{}, fmt.Errorf("failed to upload %s chunk: %w", kind, err)
	}
	l.logger.Info("import.chunk.success", "kind", kind, "key", key, "count", count)
	return sync.ImportJob{
		ID:    id,
		Kind:  kind,
		URL:   fmt.Sprintf("s3://%s/%s", l.bucket, key),
		Count: count,
	}, nil
}
