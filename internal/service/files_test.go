package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"ssfile/internal/storage"
)

type mockStore struct {
	data         []byte
	originalName string
	mimeType     string
	writerID     uint8
	putErr       error

	getKey      string
	getAccepts  bool
	getErr      error
	getResponse *storage.Object
}

func (m *mockStore) Put(ctx context.Context, r io.Reader, originalName, mimeType string, writerID uint8) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.data = body
	m.originalName = originalName
	m.mimeType = mimeType
	m.writerID = writerID
	if m.putErr != nil {
		return "", m.putErr
	}
	return "abc123", nil
}

func (m *mockStore) Get(ctx context.Context, key string, acceptsCompression bool) (*storage.Object, error) {
	m.getKey = key
	m.getAccepts = acceptsCompression
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getResponse, nil
}

func TestFileService_Upload_WritesStore(t *testing.T) {
	store := &mockStore{}
	svc := NewFileService(store)

	payload := []byte("hello world")
	result, err := svc.Upload(context.Background(), UploadInput{
		OriginalName: "greeting.txt",
		MimeType:     "text/plain; charset=utf-8",
		WriterID:     3,
		Reader:       bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if result.Key != "abc123" {
		t.Fatalf("unexpected key %q", result.Key)
	}
	if result.SizeBytes != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), result.SizeBytes)
	}
	if !bytes.Equal(store.data, payload) {
		t.Fatalf("store received %q", store.data)
	}
	if store.originalName != "greeting.txt" || store.writerID != 3 {
		t.Fatalf("unexpected metadata: %q writer %d", store.originalName, store.writerID)
	}
	if store.mimeType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected mime type %q", store.mimeType)
	}
}

func TestFileService_Upload_NormalizesMetadata(t *testing.T) {
	cases := []struct {
		name, mime         string
		wantName, wantMime string
	}{
		{"a.bin", "", "a.bin", DefaultMimeType},
		{"a.bin", "not a mime;;", "a.bin", DefaultMimeType},
		{`C:\Users\me\report.pdf`, "application/pdf", "report.pdf", "application/pdf"},
		{"dir/sub/photo.png", "IMAGE/PNG", "photo.png", "image/png"},
		{"bad\xffname", "text/plain", "bad\uFFFDname", "text/plain"},
		{"", "text/plain", "", "text/plain"},
	}

	for _, tc := range cases {
		store := &mockStore{}
		svc := NewFileService(store)
		if _, err := svc.Upload(context.Background(), UploadInput{
			OriginalName: tc.name,
			MimeType:     tc.mime,
			Reader:       strings.NewReader("x"),
		}); err != nil {
			t.Fatalf("Upload(%q): %v", tc.name, err)
		}
		if store.originalName != tc.wantName {
			t.Fatalf("name %q: expected %q, got %q", tc.name, tc.wantName, store.originalName)
		}
		if store.mimeType != tc.wantMime {
			t.Fatalf("mime %q: expected %q, got %q", tc.mime, tc.wantMime, store.mimeType)
		}
	}
}

func TestFileService_Upload_PropagatesStoreError(t *testing.T) {
	store := &mockStore{putErr: storage.ErrAllocationExhausted}
	svc := NewFileService(store)

	_, err := svc.Upload(context.Background(), UploadInput{Reader: strings.NewReader("x")})
	if !errors.Is(err, storage.ErrAllocationExhausted) {
		t.Fatalf("expected ErrAllocationExhausted, got %v", err)
	}
}

func TestFileService_Upload_RequiresReader(t *testing.T) {
	svc := NewFileService(&mockStore{})

	_, err := svc.Upload(context.Background(), UploadInput{OriginalName: "x"})
	if !errors.Is(err, storage.ErrInvalidObject) {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}
}

func TestFileService_Download(t *testing.T) {
	want := &storage.Object{Key: "abc123", Body: io.NopCloser(strings.NewReader("hi"))}
	store := &mockStore{getResponse: want}
	svc := NewFileService(store)

	obj, err := svc.Download(context.Background(), "abc123", true)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if obj != want || store.getKey != "abc123" || !store.getAccepts {
		t.Fatalf("unexpected passthrough: %+v accepts=%v", obj, store.getAccepts)
	}

	store.getErr = storage.ErrObjectNotFound
	if _, err := svc.Download(context.Background(), "zzz", false); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestFileService_NotInitialized(t *testing.T) {
	var svc *FileService
	if _, err := svc.Upload(context.Background(), UploadInput{Reader: strings.NewReader("x")}); err == nil {
		t.Fatal("expected error from nil service")
	}
	if _, err := svc.Download(context.Background(), "k", false); err == nil {
		t.Fatal("expected error from nil service")
	}
}
