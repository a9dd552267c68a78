package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"podcastgen/internal/types"
)

type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

// mockS3 is an in-memory S3 backend.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	putErr  error
	headErr error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	if in.ContentType != nil {
		m.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "/public")
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func readAll(t *testing.T, s ArtifactStore, name string) string {
	t.Helper()
	r, err := s.Open(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestLocalSaveOpenDelete(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	pub, err := l.Save(ctx, "abc.mp3", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	if pub != "/public/abc.mp3" {
		t.Fatalf("public path = %q", pub)
	}
	if got := readAll(t, l, "abc.mp3"); got != "audio" {
		t.Fatalf("got %q", got)
	}
	if ok, _ := l.Exists(ctx, "abc.mp3"); !ok {
		t.Fatal("expected artifact to exist")
	}
	if err := l.Delete(ctx, "abc.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := l.Delete(ctx, "abc.mp3"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if ok, _ := l.Exists(ctx, "abc.mp3"); ok {
		t.Fatal("artifact still present")
	}
}

func TestLocalSaveLeavesNoTempFiles(t *testing.T) {
	l := newTestLocal(t)
	if _, err := l.Save(context.Background(), "x.mp3", []byte("1")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(l.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "x.mp3" {
		t.Fatalf("entries = %v", entries)
	}
}

func TestLocalOpenMissing(t *testing.T) {
	l := newTestLocal(t)
	_, err := l.Open(context.Background(), "ghost.mp3")
	if !errors.Is(err, os.ErrNotExist) || !errors.Is(err, types.ErrStorageFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestRejectsNestedNames(t *testing.T) {
	l := newTestLocal(t)
	for _, name := range []string{"", "..", "../x.mp3", "a/b.mp3", `a\b.mp3`} {
		if _, err := l.Save(context.Background(), name, nil); !errors.Is(err, types.ErrInvalidInput) {
			t.Fatalf("Save(%q) err = %v", name, err)
		}
	}
}

func TestLocalSaveFailureIsStorageFailed(t *testing.T) {
	l := newTestLocal(t)
	if err := os.Mkdir(filepath.Join(l.Root(), "taken.mp3"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(l.Root(), "taken.mp3", "f"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := l.Save(context.Background(), "taken.mp3", []byte("x"))
	if !errors.Is(err, types.ErrStorageFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestS3SaveAndOpen(t *testing.T) {
	mock := newMockS3()
	s := NewS3(mock, "bucket", "podcasts", "https://cdn.example.com/")
	pub, err := s.Save(context.Background(), "abc.mp3", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	if pub != "https://cdn.example.com/podcasts/abc.mp3" {
		t.Fatalf("public url = %q", pub)
	}
	if mock.types["podcasts/abc.mp3"] != "audio/mpeg" {
		t.Fatalf("content type = %q", mock.types["podcasts/abc.mp3"])
	}
	if got := readAll(t, s, "abc.mp3"); got != "audio" {
		t.Fatalf("got %q", got)
	}
}

func TestS3OpenMissing(t *testing.T) {
	s := NewS3(newMockS3(), "bucket", "", "")
	_, err := s.Open(context.Background(), "nope.mp3")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}

func TestS3Exists(t *testing.T) {
	mock := newMockS3()
	s := NewS3(mock, "bucket", "", "")
	ctx := context.Background()
	if ok, err := s.Exists(ctx, "a.mp3"); err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	mock.objects["a.mp3"] = []byte("x")
	if ok, err := s.Exists(ctx, "a.mp3"); err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	mock.headErr = errors.New("network failure")
	if _, err := s.Exists(ctx, "a.mp3"); !errors.Is(err, types.ErrStorageFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestS3SaveError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = &apiError{code: "AccessDenied", msg: "denied"}
	s := NewS3(mock, "bucket", "", "")
	_, err := s.Save(context.Background(), "a.mp3", []byte("x"))
	if !errors.Is(err, types.ErrStorageFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", errNoSuchKey, true},
		{"NotFound", errNotFound, true},
		{"other api error", &apiError{code: "AccessDenied", msg: "denied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Fatalf("isS3NotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
