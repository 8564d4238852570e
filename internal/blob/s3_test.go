package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket honouring If-None-Match on PutObject
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	pageSize     int
	listErr      error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		pageSize:     2,
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, ok := f.objects[key]; ok {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
		}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	f.contentTypes[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	keys := make([]string, 0)
	prefixes := map[string]struct{}{}
	for key := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				prefixes[prefix+rest[:i+1]] = struct{}{}
				continue
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == aws.ToString(in.ContinuationToken) {
				start = i
				break
			}
		}
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		out.IsTruncated = aws.Bool(false)
		for p := range prefixes {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(p)})
		}
	}
	return out, nil
}

func newTestS3Backend() (*S3Backend, *fakeS3) {
	fake := newFakeS3()
	return NewS3Backend(fake, &S3Config{BucketName: "assets", Region: "us-east-1"}), fake
}

func TestS3WriteStream(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestS3Backend()

	require.NoError(t, b.WriteStream(ctx, "base/fp/site.css", strings.NewReader("body{}")))
	assert.Equal(t, []byte("body{}"), fake.objects["base/fp/site.css"])
	assert.Equal(t, "text/css; charset=utf-8", fake.contentTypes["base/fp/site.css"])

	err := b.WriteStream(ctx, "base/fp/site.css", strings.NewReader("other"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, []byte("body{}"), fake.objects["base/fp/site.css"])

	assert.ErrorIs(t, b.WriteStream(ctx, "/abs", strings.NewReader("x")), ErrInvalidKey)
}

func TestS3WriteStreamSniffsUnknownExtension(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestS3Backend()

	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 1024)...)
	require.NoError(t, b.WriteStream(ctx, "base/fp/doc.unknownext", bytes.NewReader(pdf)))
	assert.Equal(t, "application/pdf", fake.contentTypes["base/fp/doc.unknownext"])
	assert.Equal(t, pdf, fake.objects["base/fp/doc.unknownext"])
}

func TestS3CreateDirectory(t *testing.T) {
	ctx := context.Background()
	b, fake := newTestS3Backend()

	require.NoError(t, b.CreateDirectory(ctx, "base/fp"))
	require.NoError(t, b.CreateDirectory(ctx, "base/fp"))
	data, ok := fake.objects["base/fp/"]
	assert.True(t, ok)
	assert.Empty(t, data)
}

func TestS3ListContents(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestS3Backend()

	require.NoError(t, b.CreateDirectory(ctx, "base/fp"))
	require.NoError(t, b.CreateDirectory(ctx, "base/fp/css"))
	require.NoError(t, b.WriteStream(ctx, "base/fp/app.js", strings.NewReader("a")))
	require.NoError(t, b.WriteStream(ctx, "base/fp/css/site.css", strings.NewReader("c")))
	require.NoError(t, b.WriteStream(ctx, "base/fp/img/x/y.png", strings.NewReader("p")))

	entries, err := b.ListContents(ctx, "base/fp", true)
	require.NoError(t, err)
	dirs, files := entryPaths(entries)
	assert.Equal(t, []string{"base/fp/css", "base/fp/img", "base/fp/img/x"}, dirs)
	assert.Equal(t, []string{"base/fp/app.js", "base/fp/css/site.css", "base/fp/img/x/y.png"}, files)

	entries, err = b.ListContents(ctx, "base/fp", false)
	require.NoError(t, err)
	dirs, files = entryPaths(entries)
	assert.Equal(t, []string{"base/fp/css", "base/fp/img"}, dirs)
	assert.Equal(t, []string{"base/fp/app.js"}, files)

	entries, err = b.ListContents(ctx, "base/missing", true)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestS3ListContentsError(t *testing.T) {
	b, fake := newTestS3Backend()
	fake.listErr = errors.New("access denied")

	_, err := b.ListContents(context.Background(), "base/fp", true)
	assert.ErrorContains(t, err, "access denied")
}

func TestIsS3Exists(t *testing.T) {
	assert.True(t, isS3Exists(&smithy.GenericAPIError{Code: "PreconditionFailed"}))
	assert.True(t, isS3Exists(&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}))
	assert.False(t, isS3Exists(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isS3Exists(errors.New("PreconditionFailed")))
}

func TestPeekHead(t *testing.T) {
	// non seekable readers get the peeked bytes replayed
	head, body, err := peekHead(io.MultiReader(strings.NewReader("hello "), strings.NewReader("world")))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(head))
	rest, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(rest))

	// seekable readers are rewound
	r := bytes.NewReader([]byte("abc"))
	head, body, err = peekHead(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(head))
	assert.Same(t, r, body)
	rest, _ = io.ReadAll(body)
	assert.Equal(t, "abc", string(rest))
}
