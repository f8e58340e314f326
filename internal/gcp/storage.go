package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	embodiedflows "github.com/superdango/embodied-flows"
	"github.com/superdango/embodied-flows/model/catalog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Option func(s *StorageSource)

// WithClientOptions forwards options to the storage client, for example
// option.WithCredentialsFile or option.WithEndpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *StorageSource) {
		s.clientOptions = append(s.clientOptions, opts...)
	}
}

// StorageSource loads catalog files from Cloud Storage. A location ending
// with a slash loads and merges every .csv object under that prefix.
type StorageSource struct {
	client        *storage.Client
	clientOptions []option.ClientOption
	bucket        string
	object        string
}

func NewStorageSource(ctx context.Context, location string, opts ...Option) (source *StorageSource, err error) {
	source = new(StorageSource)
	for _, opt := range opts {
		opt(source)
	}

	source.bucket, source.object, err = ParseLocation(location)
	if err != nil {
		return nil, err
	}

	source.client, err = storage.NewClient(ctx, source.clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return source, nil
}

// ParseLocation splits gs://bucket/object.
func ParseLocation(location string) (bucket, object string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("invalid storage location %q: %w", location, err)
	}
	if u.Scheme != "gs" || u.Host == "" {
		return "", "", fmt.Errorf("invalid storage location %q: expected gs://bucket/object", location)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func (source *StorageSource) Load(ctx context.Context) (*catalog.Catalog, error) {
	objects := []string{source.object}
	if source.object == "" || strings.HasSuffix(source.object, "/") {
		var err error
		objects, err = source.list(ctx)
		if err != nil {
			return nil, err
		}
	}

	records := make([]embodiedflows.Record, 0)
	for _, object := range objects {
		c, err := source.read(ctx, object)
		if err != nil {
			return nil, err
		}
		records = append(records, c.Records()...)
	}

	slog.Info("catalog loaded from cloud storage", "bucket", source.bucket, "objects", len(objects), "materials", len(records))

	return catalog.New(records), nil
}

func (source *StorageSource) list(ctx context.Context) ([]string, error) {
	objects := make([]string, 0)
	it := source.client.Bucket(source.bucket).Objects(ctx, &storage.Query{Prefix: source.object})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate on next object: %w", err)
		}
		if strings.HasSuffix(attrs.Name, ".csv") {
			objects = append(objects, attrs.Name)
		}
	}

	if len(objects) == 0 {
		return nil, fmt.Errorf("no catalog file found in gs://%s/%s", source.bucket, source.object)
	}
	return objects, nil
}

func (source *StorageSource) read(ctx context.Context, object string) (*catalog.Catalog, error) {
	r, err := source.client.Bucket(source.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", source.bucket, object, err)
	}
	defer r.Close()

	c, err := catalog.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gs://%s/%s: %w", source.bucket, object, err)
	}
	return c, nil
}

func (source *StorageSource) String() string {
	return "gs://" + source.bucket + "/" + source.object
}

func (source *StorageSource) Close() error {
	return source.client.Close()
}
