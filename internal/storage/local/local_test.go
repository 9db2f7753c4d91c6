package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"ssfile/internal/storage"
	"ssfile/internal/storage/compress"
)

func newDiskStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Options{Dir: dir})
	require.NoError(t, err)
	return s, dir
}

func readAllAndClose(t *testing.T, obj *storage.Object) []byte {
	t.Helper()
	defer obj.Close()
	b, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	return b
}

func TestPutGet_HelloScenario(t *testing.T) {
	s, _ := newDiskStore(t)
	ctx := context.Background()

	before := time.Now().Truncate(time.Second)
	key, err := s.Put(ctx, strings.NewReader("hello"), "a.txt", "text/plain", 2)
	require.NoError(t, err)
	require.NotEmpty(t, key)

	obj, err := s.Get(ctx, key, false)
	require.NoError(t, err)

	require.Equal(t, key, obj.Key)
	require.Equal(t, "text/plain", obj.Metadata.MimeType)
	require.Equal(t, "a.txt", obj.Metadata.OriginalName)
	require.Equal(t, uint8(2), obj.Metadata.WriterID)
	require.Empty(t, obj.Encoding)
	require.False(t, obj.Metadata.DateUploaded.Before(before))
	require.False(t, obj.Metadata.DateUploaded.After(time.Now()))
	require.Equal(t, "hello", string(readAllAndClose(t, obj)))
}

func TestPutGet_RoundTripRandomPayloads(t *testing.T) {
	s, _ := newDiskStore(t)
	ctx := context.Background()
	rnd := rand.New(rand.NewPCG(42, 1))

	for _, size := range []int{0, 1, 511, 64 * 1024, 1 << 20} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(rnd.Uint32())
		}

		key, err := s.Put(ctx, bytes.NewReader(payload), "blob.bin", "application/octet-stream", 255)
		require.NoError(t, err)

		obj, err := s.Get(ctx, key, false)
		require.NoError(t, err)
		require.Equal(t, uint8(255), obj.Metadata.WriterID)
		require.Equal(t, payload, readAllAndClose(t, obj), "size %d", size)
	}
}

func TestPut_StoresCompressedPayloadAfterHeader(t *testing.T) {
	s, dir := newDiskStore(t)
	payload := strings.Repeat("compress me ", 1000)

	key, err := s.Put(context.Background(), strings.NewReader(payload), "x.txt", "text/plain", 0)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, key))
	require.NoError(t, err)
	require.Equal(t, []byte{0xFA, 0xFA}, raw[:2])
	require.Less(t, len(raw), len(payload), "payload must be stored compressed")
}

func TestGet_CompressionNegotiation(t *testing.T) {
	s, _ := newDiskStore(t)
	ctx := context.Background()
	payload := strings.Repeat("negotiate ", 200)

	key, err := s.Put(ctx, strings.NewReader(payload), "n.txt", "text/plain", 1)
	require.NoError(t, err)

	compressedObj, err := s.Get(ctx, key, true)
	require.NoError(t, err)
	require.Equal(t, compress.Encoding, compressedObj.Encoding)
	raw := readAllAndClose(t, compressedObj)

	plainObj, err := s.Get(ctx, key, false)
	require.NoError(t, err)
	plain := readAllAndClose(t, plainObj)

	require.NotEqual(t, raw, plain)
	require.Equal(t, payload, string(plain))

	r, err := compress.NewReader(io.NopCloser(bytes.NewReader(raw)))
	require.NoError(t, err)
	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, plain, decoded)
}

func TestGet_MissingObject(t *testing.T) {
	s, _ := newDiskStore(t)

	_, err := s.Get(context.Background(), "doesnotexist", false)
	require.ErrorIs(t, err, storage.ErrObjectNotFound)

	_, err = s.Get(context.Background(), "abcdef", false)
	require.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestGet_ReadsObjectsAfterKeyLengthChange(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	before, err := New(Options{Dir: dir, KeyLength: 6})
	require.NoError(t, err)
	oldKey, err := before.Put(ctx, strings.NewReader("written at six"), "six.txt", "text/plain", 4)
	require.NoError(t, err)
	require.Len(t, oldKey, 6)

	after, err := New(Options{Dir: dir, KeyLength: 8})
	require.NoError(t, err)

	obj, err := after.Get(ctx, oldKey, false)
	require.NoError(t, err)
	require.Equal(t, "six.txt", obj.Metadata.OriginalName)
	require.Equal(t, "written at six", string(readAllAndClose(t, obj)))

	newKey, err := after.Put(ctx, strings.NewReader("written at eight"), "eight.txt", "text/plain", 4)
	require.NoError(t, err)
	require.Len(t, newKey, 8)

	obj, err = before.Get(ctx, newKey, false)
	require.NoError(t, err)
	require.Equal(t, "written at eight", string(readAllAndClose(t, obj)))
}

func TestGet_RejectsPathLikeKeys(t *testing.T) {
	s, dir := newDiskStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "..", "secret"), []byte("x"), 0o600))

	for _, key := range []string{"../secret", "..", ".", "a/b", ""} {
		_, err := s.Get(context.Background(), key, false)
		require.ErrorIs(t, err, storage.ErrObjectNotFound, "key %q", key)
	}
}

func TestGet_FlippedMagicIsCorrupt(t *testing.T) {
	s, dir := newDiskStore(t)
	ctx := context.Background()

	key, err := s.Put(ctx, strings.NewReader("hello"), "a.txt", "text/plain", 2)
	require.NoError(t, err)

	path := filepath.Join(dir, key)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	raw[1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = s.Get(ctx, key, false)
	require.ErrorIs(t, err, storage.ErrCorruptObject)
	require.NotErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestGet_TruncatedFileIsCorrupt(t *testing.T) {
	s, dir := newDiskStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abcdef"), []byte{0xFA, 0xFA, 0x00}, 0o644))

	_, err := s.Get(context.Background(), "abcdef", true)
	require.ErrorIs(t, err, storage.ErrCorruptObject)
}

func TestPut_ConcurrentKeysAreUnique(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{Dir: dir, KeyLength: 4, MaxAttempts: 64})
	require.NoError(t, err)

	const writers = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		keys = map[string]string{}
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := strings.Repeat(string(rune('a'+i%26)), i+1)
			key, err := s.Put(context.Background(), strings.NewReader(body), "f", "text/plain", uint8(i))
			if err != nil {
				t.Errorf("put %d: %v", i, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if _, dup := keys[key]; dup {
				t.Errorf("key %q handed out twice", key)
			}
			keys[key] = body
		}(i)
	}
	wg.Wait()
	require.Len(t, keys, writers)

	for key, body := range keys {
		obj, err := s.Get(context.Background(), key, false)
		require.NoError(t, err)
		require.Equal(t, body, string(readAllAndClose(t, obj)))
	}
}

type failAfter struct {
	n   int
	err error
}

func (f *failAfter) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, f.err
	}
	if len(p) > f.n {
		p = p[:f.n]
	}
	for i := range p {
		p[i] = 'z'
	}
	f.n -= len(p)
	return len(p), nil
}

func TestPut_MidStreamFailureLeavesOtherObjectsIntact(t *testing.T) {
	s, dir := newDiskStore(t)
	ctx := context.Background()

	good, err := s.Put(ctx, strings.NewReader("keep me"), "keep.txt", "text/plain", 1)
	require.NoError(t, err)

	boom := errors.New("client went away")
	_, err = s.Put(ctx, &failAfter{n: 4096, err: boom}, "bad.txt", "text/plain", 1)
	require.ErrorIs(t, err, storage.ErrIOFailure)
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "partial object should be removed")
	require.Equal(t, good, entries[0].Name())

	obj, err := s.Get(ctx, good, false)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(readAllAndClose(t, obj)))
}

func TestPut_CancelledContextAbortsAndCleansUp(t *testing.T) {
	s, dir := newDiskStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		_, _ = pw.Write([]byte("partial"))
		cancel()
		_, _ = pw.Write([]byte("more"))
		pw.Close()
	}()

	_, err := s.Put(ctx, pr, "c.txt", "text/plain", 0)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPut_OversizedMetadataIsInvalid(t *testing.T) {
	s, dir := newDiskStore(t)

	_, err := s.Put(context.Background(), strings.NewReader("x"), strings.Repeat("n", 70000), "text/plain", 0)
	require.ErrorIs(t, err, storage.ErrInvalidObject)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "no file may be allocated for rejected metadata")
}

func TestPut_AllocationExhausted(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/objects", 0o755))
	s, err := New(Options{Dir: "/objects", Fs: fsys, KeyLength: 1, MaxAttempts: 1})
	require.NoError(t, err)

	// fill every single-character name
	for _, c := range "abcdefghkmnoprstwxzABCDEFGHJKLMNPQRTWXY34689" {
		require.NoError(t, afero.WriteFile(fsys, "/objects/"+string(c), nil, 0o644))
	}

	_, err = s.Put(context.Background(), strings.NewReader("x"), "a", "text/plain", 0)
	require.ErrorIs(t, err, storage.ErrAllocationExhausted)
}

func TestPut_UsesClockForUploadDate(t *testing.T) {
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 999, time.UTC)
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/o", 0o755))
	s, err := New(Options{Dir: "/o", Fs: fsys, Now: func() time.Time { return fixed }})
	require.NoError(t, err)

	key, err := s.Put(context.Background(), strings.NewReader("t"), "t", "text/plain", 0)
	require.NoError(t, err)

	obj, err := s.Get(context.Background(), key, true)
	require.NoError(t, err)
	defer obj.Close()
	require.True(t, obj.Metadata.DateUploaded.Equal(fixed.Truncate(time.Second)))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Dir: t.TempDir(), CompressionLevel: 99})
	require.Error(t, err)
}
