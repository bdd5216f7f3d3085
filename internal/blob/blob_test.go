package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestFilesystemPut(t *testing.T) {
	root := t.TempDir()
	sink, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	location, err := sink.Put(context.Background(), "exp/data.csv", strings.NewReader("a,b\n1,2\n"), "text/csv")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if location != filepath.Join(root, "exp", "data.csv") {
		t.Fatalf("unexpected location: %s", location)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	sink, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	for _, key := range []string{"", "../x", "/abs"} {
		if _, err := sink.Put(context.Background(), key, strings.NewReader(""), ""); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

type fakePutter struct {
	key         string
	contentType string
	body        string
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	if in.ContentType != nil {
		f.contentType = *in.ContentType
	}
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3PutUsesPrefix(t *testing.T) {
	fake := &fakePutter{}
	sink := &S3{client: fake, bucket: "results", prefix: "exp-1"}
	location, err := sink.Put(context.Background(), "data.csv", strings.NewReader("x"), "text/csv")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if location != "s3://results/exp-1/data.csv" || fake.key != "exp-1/data.csv" {
		t.Fatalf("unexpected location %s key %s", location, fake.key)
	}
	if fake.contentType != "text/csv" || fake.body != "x" {
		t.Fatalf("unexpected upload: %+v", fake)
	}
}

func TestS3PutWrapsErrors(t *testing.T) {
	cause := errors.New("denied")
	sink := &S3{client: &fakePutter{err: cause}, bucket: "results"}
	if _, err := sink.Put(context.Background(), "data.csv", strings.NewReader("x"), ""); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
