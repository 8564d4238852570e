package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	BucketName      string `mapstructure:"bucket_name"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
	CacheControl    string `mapstructure:"cache_control"`
}

func (c *GCSConfig) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	return nil
}

type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	config *GCSConfig
}

func NewGCSBackend(client *storage.Client, cfg *GCSConfig) *GCSBackend {
	return &GCSBackend{
		client: client,
		bucket: client.Bucket(cfg.BucketName),
		config: cfg,
	}
}

// NewGCSBackendWithConfig builds the storage client from cfg.
// Without a credentials file application default credentials are used.
func NewGCSBackendWithConfig(ctx context.Context, cfg *GCSConfig) (*GCSBackend, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		if cfg.CredentialsFile == "" {
			// emulators such as fake-gcs-server take no credentials
			opts = append(opts, option.WithoutAuthentication())
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewGCSBackend(client, cfg), nil
}

func (g *GCSBackend) ListContents(ctx context.Context, dir string, recursive bool) ([]*Entry, error) {
	prefix := listPrefix(dir)
	q := &storage.Query{Prefix: prefix, Versions: false}
	if !recursive {
		q.Delimiter = "/"
	}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, opError("list", dir, err)
	}

	lister := newObjectLister(prefix, recursive)
	it := g.bucket.Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, opError("list", dir, err)
		}
		if attrs.Prefix != "" {
			lister.addCommonPrefix(attrs.Prefix)
			continue
		}
		lister.addObject(attrs.Name)
	}

	return lister.entries(), nil
}

func (g *GCSBackend) CreateDirectory(ctx context.Context, dir string) error {
	if err := checkKey("mkdir", dir); err != nil {
		return err
	}

	key := listPrefix(dir)
	w := g.bucket.Object(key).NewWriter(ctx)
	return opError("mkdir", key, w.Close())
}

// WriteStream uploads body under a does-not-exist precondition
func (g *GCSBackend) WriteStream(ctx context.Context, key string, body io.Reader) error {
	if err := checkKey("write", key); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	head, body, err := peekHead(body)
	if err != nil {
		return opError("write", key, err)
	}

	w := g.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = detectContentType(key, head)
	if g.config.CacheControl != "" {
		w.CacheControl = g.config.CacheControl
	}

	if _, err := io.Copy(w, body); err != nil {
		// cancelling the context aborts the upload so no partial object is committed
		cancel()
		w.Close()
		return opError("write", key, err)
	}

	if err := w.Close(); err != nil {
		if isGCSExists(err) {
			return opError("write", key, ErrAlreadyExists)
		}
		return opError("write", key, err)
	}

	slog.Debug("gcs put", "bucket", g.config.BucketName, "key", key)
	return nil
}

func (g *GCSBackend) Delegate() any {
	return g.client
}

func (g *GCSBackend) Close() error {
	return g.client.Close()
}

func isGCSExists(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusPreconditionFailed
	}
	return false
}

var _ Store = (*GCSBackend)(nil)
