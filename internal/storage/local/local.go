package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"ssfile/internal/storage"
	"ssfile/internal/storage/compress"
	"ssfile/internal/storage/container"
	"ssfile/internal/storage/namegen"
)

// Options 配置本地对象存储。零值字段使用默认值。
type Options struct {
	Dir              string
	KeyLength        int
	MaxAttempts      int
	CompressionLevel int
	// Fs 默认为操作系统文件系统。
	Fs afero.Fs
	// Now 默认为 time.Now。
	Now func() time.Time
}

// Store 将每个对象保存为目录下的一个文件，文件名即对象 key。
type Store struct {
	fs        afero.Fs
	allocator *namegen.Allocator
	level     int
	now       func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New 创建本地对象存储。目录需已存在（由 config.Load 负责创建）。
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("local store: directory is required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = compress.DefaultCompression
	}

	allocator, err := namegen.New(opts.Fs, namegen.Config{
		Dir:         opts.Dir,
		KeyLength:   opts.KeyLength,
		MaxAttempts: opts.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}

	// 提前校验压缩级别，避免每次写入时才失败
	if _, err := compress.NewWriter(io.Discard, opts.CompressionLevel); err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}

	return &Store{
		fs:        opts.Fs,
		allocator: allocator,
		level:     opts.CompressionLevel,
		now:       opts.Now,
	}, nil
}

// Put 分配名称、写入容器头，然后将 r 压缩后流式写入文件。
// 失败时会尽力删除已创建的半成品文件。
func (s *Store) Put(ctx context.Context, r io.Reader, originalName, mimeType string, writerID uint8) (string, error) {
	if s == nil {
		return "", fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	header := container.Header{
		Uploaded:     s.now().UTC().Truncate(time.Second),
		WriterID:     writerID,
		MimeType:     mimeType,
		OriginalName: originalName,
	}
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrInvalidObject, err)
	}

	key, file, err := s.allocator.Allocate()
	if err != nil {
		if errors.Is(err, namegen.ErrExhausted) {
			return "", fmt.Errorf("%w: %w", storage.ErrAllocationExhausted, err)
		}
		return "", fmt.Errorf("%w: allocate: %w", storage.ErrIOFailure, err)
	}

	if err := s.writeObject(ctx, file, headerBytes, r); err != nil {
		file.Close()
		s.discard(key)
		return "", err
	}

	if err := file.Close(); err != nil {
		s.discard(key)
		return "", fmt.Errorf("%w: close %s: %w", storage.ErrIOFailure, key, err)
	}

	return key, nil
}

func (s *Store) writeObject(ctx context.Context, file afero.File, header []byte, r io.Reader) error {
	// 容器头必须先于任何 payload 字节落盘
	if _, err := file.Write(header); err != nil {
		return fmt.Errorf("%w: write header: %w", storage.ErrIOFailure, err)
	}

	if _, err := compress.Copy(file, &contextReader{ctx: ctx, r: r}, s.level); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		return fmt.Errorf("%w: write payload: %w", storage.ErrIOFailure, err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", storage.ErrIOFailure, err)
	}
	return nil
}

func (s *Store) discard(key string) {
	if err := s.fs.Remove(s.allocator.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("key", key).Msg("could not remove partial object")
	}
}

// Get 打开 key 对应的文件并解析容器头，返回定位到 payload 的流。
func (s *Store) Get(ctx context.Context, key string, acceptsCompression bool) (*storage.Object, error) {
	if s == nil {
		return nil, fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// key 直接用作文件名，只接受分配器可能生成的字符
	if !s.allocator.Valid(key) {
		return nil, storage.ErrObjectNotFound
	}

	path := s.allocator.Path(key)
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: stat %s: %w", storage.ErrIOFailure, key, err)
	}
	if !info.Mode().IsRegular() {
		return nil, storage.ErrObjectNotFound
	}

	file, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: open %s: %w", storage.ErrIOFailure, key, err)
	}

	header, _, err := container.Decode(file)
	if err != nil {
		file.Close()
		if errors.Is(err, container.ErrCorruptContainer) {
			return nil, fmt.Errorf("%w: %s: %w", storage.ErrCorruptObject, key, err)
		}
		return nil, fmt.Errorf("%w: read header %s: %w", storage.ErrIOFailure, key, err)
	}

	obj := &storage.Object{
		Key: key,
		Metadata: storage.Metadata{
			DateUploaded: header.Uploaded,
			WriterID:     header.WriterID,
			MimeType:     header.MimeType,
			OriginalName: header.OriginalName,
		},
	}

	if acceptsCompression {
		obj.Encoding = compress.Encoding
		obj.Body = file
		return obj, nil
	}

	body, err := compress.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrCorruptObject, key, err)
	}
	obj.Body = body
	return obj, nil
}

// contextReader 在每次读取前检查 ctx，使上传可被调用方中止。
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
