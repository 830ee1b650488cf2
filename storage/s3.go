package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hazyhaar/pdf2emb/horosafe"
)

// S3Scheme prefixes bucket-qualified paths. It is optional when the S3
// source is selected.
const S3Scheme = "s3://"

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 serves objects from Amazon S3 or a compatible endpoint. Objects are
// downloaded whole, up to maxBytes, since PDF parsing needs random access.
type S3 struct {
	client   S3API
	maxBytes int64
}

// NewS3 wraps client. maxBytes caps a single download.
func NewS3(client S3API, maxBytes int64) *S3 {
	return &S3{client: client, maxBytes: maxBytes}
}

// SplitS3Path splits "s3://bucket/key" or "bucket/key" into its parts.
func SplitS3Path(path string) (bucket, key string, err error) {
	p := strings.TrimPrefix(path, S3Scheme)
	p = strings.TrimLeft(p, "/")
	bucket, key, _ = strings.Cut(p, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("storage: no bucket in %q", path)
	}
	return bucket, key, nil
}

// Stat implements Source. A key that names a prefix with objects under it is
// reported as a directory.
func (s *S3) Stat(ctx context.Context, path string) (Info, error) {
	bucket, key, err := SplitS3Path(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrAccess, err)
	}

	if key != "" && !strings.HasSuffix(key, "/") {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			return Info{Path: path, Size: aws.ToInt64(out.ContentLength)}, nil
		}
		if cerr := classifyS3(path, err); !errors.Is(cerr, ErrNotFound) {
			return Info{}, cerr
		}
	}

	prefix := key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return Info{}, classifyS3(path, err)
	}
	if len(out.Contents) == 0 {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return Info{Path: path, Dir: true}, nil
}

// Open implements Source. Objects whose declared length exceeds the cap are
// refused before the body is read.
func (s *S3) Open(ctx context.Context, path string) (Object, error) {
	bucket, key, err := SplitS3Path(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccess, err)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3(path, err)
	}
	defer out.Body.Close()

	if n := aws.ToInt64(out.ContentLength); s.maxBytes > 0 && n > s.maxBytes {
		return nil, fmt.Errorf("%w: %s: %w: %d bytes exceed %d", ErrAccess, path, horosafe.ErrTooLarge, n, s.maxBytes)
	}
	data, err := horosafe.LimitedReadAll(out.Body, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAccess, path, err)
	}
	return &memObject{Reader: bytes.NewReader(data)}, nil
}

// List implements Source. Returned paths carry the s3:// scheme.
func (s *S3) List(ctx context.Context, dir string) ([]string, error) {
	bucket, key, err := SplitS3Path(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccess, err)
	}
	prefix := key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var paths []string
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyS3(dir, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if k == prefix || strings.HasSuffix(k, "/") {
				continue
			}
			paths = append(paths, S3Scheme+bucket+"/"+k)
		}
	}
	if len(paths) == 0 {
		// An empty listing cannot tell an empty prefix from a missing one.
		if _, err := s.Stat(ctx, dir); err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

type memObject struct {
	*bytes.Reader
}

func (o *memObject) Close() error { return nil }

func classifyS3(path string, err error) error {
	var (
		notFound *types.NotFound
		noKey    *types.NoSuchKey
		noBucket *types.NoSuchBucket
	)
	if errors.As(err, &notFound) || errors.As(err, &noKey) || errors.As(err, &noBucket) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrAccess, path, err)
}
