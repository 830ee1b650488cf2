package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/spf13/afero"

	"github.com/hazyhaar/pdf2emb/horosafe"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fsys, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fsys
}

func TestLocal_StatOpen(t *testing.T) {
	src := NewLocal(memFS(t, map[string]string{"/in/a.pdf": "%PDF-1.4 hello"}))
	ctx := context.Background()

	info, err := src.Stat(ctx, "/in/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if info.Dir || info.Size != 14 {
		t.Fatalf("info = %+v", info)
	}

	obj, err := src.Open(ctx, "/in/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Close()
	if obj.Size() != 14 {
		t.Fatalf("Size = %d", obj.Size())
	}
	buf := make([]byte, 5)
	if _, err := obj.ReadAt(buf, 9); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Fatalf("ReadAt = %q", buf)
	}

	dir, err := src.Stat(ctx, "/in")
	if err != nil || !dir.Dir {
		t.Fatalf("Stat(dir) = %+v, %v", dir, err)
	}
}

func TestLocal_Errors(t *testing.T) {
	src := NewLocal(memFS(t, map[string]string{"/in/a.pdf": "x"}))
	ctx := context.Background()

	if _, err := src.Stat(ctx, "/in/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat(missing) = %v, want ErrNotFound", err)
	}
	if _, err := src.Open(ctx, "/in/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) = %v, want ErrNotFound", err)
	}
	if _, err := src.Open(ctx, "/in"); !errors.Is(err, ErrAccess) {
		t.Errorf("Open(dir) = %v, want ErrAccess", err)
	}
	if _, err := src.List(ctx, "/nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("List(missing) = %v, want ErrNotFound", err)
	}
}

func TestLocal_List(t *testing.T) {
	src := NewLocal(memFS(t, map[string]string{
		"/in/b.pdf":     "b",
		"/in/a.pdf":     "a",
		"/in/notes.txt": "n",
		"/in/sub/c.pdf": "c",
		"/other/d.pdf":  "d",
	}))
	got, err := src.List(context.Background(), "/in")
	if err != nil {
		t.Fatal(err)
	}
	want := "/in/a.pdf,/in/b.pdf,/in/notes.txt"
	if strings.Join(got, ",") != want {
		t.Fatalf("List = %v, want %s", got, want)
	}
}

func TestExists(t *testing.T) {
	src := NewLocal(memFS(t, map[string]string{"/a.pdf": "a"}))
	ctx := context.Background()
	if ok, err := Exists(ctx, src, "/a.pdf"); !ok || err != nil {
		t.Errorf("Exists(present) = %v, %v", ok, err)
	}
	if ok, err := Exists(ctx, src, "/b.pdf"); ok || err != nil {
		t.Errorf("Exists(absent) = %v, %v", ok, err)
	}
}

func TestBase(t *testing.T) {
	tests := map[string]string{
		"docs/report.pdf":            "report.pdf",
		"report.pdf":                 "report.pdf",
		"s3://bucket/dir/report.pdf": "report.pdf",
		`C:\docs\report.pdf`:         "report.pdf",
		"s3://bucket/dir/":           "dir",
	}
	for in, want := range tests {
		if got := Base(in); got != want {
			t.Errorf("Base(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, key string
		wantErr         bool
	}{
		{"s3://bkt/a/b.pdf", "bkt", "a/b.pdf", false},
		{"bkt/a/b.pdf", "bkt", "a/b.pdf", false},
		{"s3://bkt", "bkt", "", false},
		{"s3://", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		b, k, err := SplitS3Path(tt.in)
		if (err != nil) != tt.wantErr || b != tt.bucket || k != tt.key {
			t.Errorf("SplitS3Path(%q) = %q, %q, %v", tt.in, b, k, err)
		}
	}
}

// fakeS3 serves objects keyed "bucket/key" and denies any key under "private/".
type fakeS3 struct {
	objects   map[string][]byte
	bodyBytes int // bytes read from GetObject bodies
}

func (f *fakeS3) denied(key string) error {
	if strings.HasPrefix(key, "private/") {
		return &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	return nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := f.denied(aws.ToString(in.Key)); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := f.denied(aws.ToString(in.Key)); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(&countingReader{r: bytes.NewReader(data), n: &f.bodyBytes}),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	bucket, prefix := aws.ToString(in.Bucket), aws.ToString(in.Prefix)
	var keys []string
	for full := range f.objects {
		b, k, _ := strings.Cut(full, "/")
		if b != bucket || !strings.HasPrefix(k, prefix) {
			continue
		}
		if aws.ToString(in.Delimiter) == "/" && strings.Contains(k[len(prefix):], "/") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if n := int(aws.ToInt32(in.MaxKeys)); n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

type countingReader struct {
	r io.Reader
	n *int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	*c.n += n
	return n, err
}

func newFakeS3(maxBytes int64) *S3 {
	return NewS3(&fakeS3{objects: map[string][]byte{
		"docs/in/b.pdf":      []byte("bbbb"),
		"docs/in/a.pdf":      []byte("aa"),
		"docs/in/deep/c.pdf": []byte("c"),
		"docs/private/x.pdf": []byte("x"),
	}}, maxBytes)
}

func TestS3_StatOpen(t *testing.T) {
	src := newFakeS3(1 << 20)
	ctx := context.Background()

	info, err := src.Stat(ctx, "s3://docs/in/b.pdf")
	if err != nil || info.Size != 4 || info.Dir {
		t.Fatalf("Stat(object) = %+v, %v", info, err)
	}
	if info, err := src.Stat(ctx, "docs/in"); err != nil || !info.Dir {
		t.Fatalf("Stat(prefix) = %+v, %v", info, err)
	}

	obj, err := src.Open(ctx, "docs/in/b.pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Close()
	buf := make([]byte, 2)
	if _, err := obj.ReadAt(buf, 2); err != nil {
		t.Fatal(err)
	}
	if obj.Size() != 4 || string(buf) != "bb" {
		t.Fatalf("Size=%d ReadAt=%q", obj.Size(), buf)
	}
}

func TestS3_Errors(t *testing.T) {
	src := newFakeS3(3)
	ctx := context.Background()

	if _, err := src.Stat(ctx, "s3://docs/in/zzz.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat(missing) = %v, want ErrNotFound", err)
	}
	if _, err := src.Open(ctx, "s3://docs/in/zzz.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) = %v, want ErrNotFound", err)
	}
	if _, err := src.Stat(ctx, "s3://docs/private/x.pdf"); !errors.Is(err, ErrAccess) {
		t.Errorf("Stat(denied) = %v, want ErrAccess", err)
	}
	if _, err := src.Open(ctx, "s3://docs/private/x.pdf"); !errors.Is(err, ErrAccess) {
		t.Errorf("Open(denied) = %v, want ErrAccess", err)
	}
	_, err := src.Open(ctx, "s3://docs/in/b.pdf")
	if !errors.Is(err, ErrAccess) || !errors.Is(err, horosafe.ErrTooLarge) {
		t.Errorf("Open(oversized) = %v, want ErrAccess wrapping ErrTooLarge", err)
	}
	if _, err := src.Open(ctx, "s3://"); !errors.Is(err, ErrAccess) {
		t.Errorf("Open(no bucket) = %v, want ErrAccess", err)
	}
}

func TestS3_OpenOversizedSkipsDownload(t *testing.T) {
	// WHAT: An object larger than the cap is refused from its declared
	// length, without reading the body.
	fake := &fakeS3{objects: map[string][]byte{"docs/big.pdf": bytes.Repeat([]byte("x"), 64)}}
	src := NewS3(fake, 16)

	_, err := src.Open(context.Background(), "s3://docs/big.pdf")
	if !errors.Is(err, ErrAccess) || !errors.Is(err, horosafe.ErrTooLarge) {
		t.Fatalf("Open = %v, want ErrAccess wrapping ErrTooLarge", err)
	}
	if fake.bodyBytes != 0 {
		t.Fatalf("read %d body bytes of an oversized object", fake.bodyBytes)
	}
}

func TestS3_List(t *testing.T) {
	src := newFakeS3(1 << 20)
	ctx := context.Background()

	got, err := src.List(ctx, "s3://docs/in/")
	if err != nil {
		t.Fatal(err)
	}
	want := "s3://docs/in/a.pdf,s3://docs/in/b.pdf"
	if strings.Join(got, ",") != want {
		t.Fatalf("List = %v, want %s", got, want)
	}

	if _, err := src.List(ctx, "s3://docs/nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("List(missing) = %v, want ErrNotFound", err)
	}
}
