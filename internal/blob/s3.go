package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/openmined/cloudassets/internal/utils"
)

// s3API is the subset of the S3 client used by S3Backend
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
	CacheControl  string `mapstructure:"cache_control"`
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	if c.Endpoint != "" && !utils.IsValidURL(c.Endpoint) {
		return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
	}
	return nil
}

type S3Backend struct {
	client s3API
	config *S3Config
}

func NewS3Backend(client s3API, cfg *S3Config) *S3Backend {
	return &S3Backend{
		client: client,
		config: cfg,
	}
}

// NewS3BackendWithConfig builds the S3 client from cfg.
// Without static keys the default AWS credential chain is used.
// A custom endpoint switches to path-style addressing, which is what MinIO expects.
func NewS3BackendWithConfig(ctx context.Context, cfg *S3Config) (*S3Backend, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	return NewS3Backend(client, cfg), nil
}

func (s *S3Backend) ListContents(ctx context.Context, dir string, recursive bool) ([]*Entry, error) {
	prefix := listPrefix(dir)
	input := &s3.ListObjectsV2Input{
		Bucket: &s.config.BucketName,
		Prefix: aws.String(prefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	lister := newObjectLister(prefix, recursive)
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, opError("list", dir, err)
		}
		for _, obj := range page.Contents {
			lister.addObject(aws.ToString(obj.Key))
		}
		for _, cp := range page.CommonPrefixes {
			lister.addCommonPrefix(aws.ToString(cp.Prefix))
		}
	}

	return lister.entries(), nil
}

// CreateDirectory writes a zero-byte "<dir>/" marker. Rewriting an existing marker is harmless.
func (s *S3Backend) CreateDirectory(ctx context.Context, dir string) error {
	if err := checkKey("mkdir", dir); err != nil {
		return err
	}

	key := listPrefix(dir)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.config.BucketName,
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	return opError("mkdir", key, err)
}

// WriteStream uploads body with If-None-Match so that a populated key is never overwritten
func (s *S3Backend) WriteStream(ctx context.Context, key string, body io.Reader) error {
	if err := checkKey("write", key); err != nil {
		return err
	}

	head, body, err := peekHead(body)
	if err != nil {
		return opError("write", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      &s.config.BucketName,
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(detectContentType(key, head)),
		IfNoneMatch: aws.String("*"),
	}
	if size, ok := bodySize(body); ok {
		input.ContentLength = aws.Int64(size)
	}
	if s.config.CacheControl != "" {
		input.CacheControl = aws.String(s.config.CacheControl)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		if isS3Exists(err) {
			return opError("write", key, ErrAlreadyExists)
		}
		return opError("write", key, err)
	}

	slog.Debug("s3 put", "bucket", s.config.BucketName, "key", key)
	return nil
}

func (s *S3Backend) Delegate() any {
	return s.client
}

// isS3Exists reports whether err is the conditional write rejection of If-None-Match
func isS3Exists(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

const sniffLen = 512

// peekHead returns the first bytes of body for content type detection together with a reader
// that still yields the whole body. Seekable bodies stay seekable so the SDK can sign and retry them.
func peekHead(body io.Reader) ([]byte, io.Reader, error) {
	head := make([]byte, sniffLen)

	if rs, ok := body.(io.ReadSeeker); ok {
		n, err := io.ReadFull(rs, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, nil, err
		}
		return head[:n], rs, nil
	}

	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, err
	}
	head = head[:n]
	return head, io.MultiReader(bytes.NewReader(head), body), nil
}

func bodySize(body io.Reader) (int64, bool) {
	switch b := body.(type) {
	case *os.File:
		info, err := b.Stat()
		if err != nil {
			return 0, false
		}
		return info.Size(), true
	case *bytes.Reader:
		return int64(b.Len()), true
	case *bytes.Buffer:
		return int64(b.Len()), true
	}
	return 0, false
}

var _ Store = (*S3Backend)(nil)
