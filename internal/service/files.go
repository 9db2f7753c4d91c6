package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"ssfile/internal/storage"
)

// DefaultMimeType 用于客户端未提供或提供了非法 Content-Type 的上传。
const DefaultMimeType = "application/octet-stream"

var (
	objectsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ssfile",
		Name:      "objects_written_total",
		Help:      "Objects successfully stored.",
	})

	bytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ssfile",
		Name:      "payload_bytes_written_total",
		Help:      "Uncompressed payload bytes accepted from uploaders.",
	})

	objectReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ssfile",
		Name:      "object_reads_total",
		Help:      "Object lookups by outcome.",
	}, []string{"result"})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ssfile",
		Name:      "upload_duration_seconds",
		Help:      "Time spent streaming an upload into the store.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
	})
)

// FileService 编排上传与下载，负责元数据规范化与统计。
type FileService struct {
	store storage.Store
}

func NewFileService(store storage.Store) *FileService {
	return &FileService{store: store}
}

// UploadInput 描述一次上传。
type UploadInput struct {
	OriginalName string
	MimeType     string
	WriterID     uint8
	Reader       io.Reader
}

// UploadResult 是上传成功后的结果。
type UploadResult struct {
	Key       string
	SizeBytes int64
}

// Upload 规范化元数据并将内容流式写入存储。
func (s *FileService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("file service not initialized")
	}
	if input.Reader == nil {
		return nil, fmt.Errorf("%w: upload body is missing", storage.ErrInvalidObject)
	}

	name := normalizeName(input.OriginalName)
	mimeType := normalizeMimeType(input.MimeType)

	start := time.Now()
	counter := &countingReader{r: input.Reader}
	key, err := s.store.Put(ctx, counter, name, mimeType, input.WriterID)
	if err != nil {
		return nil, err
	}

	uploadDuration.Observe(time.Since(start).Seconds())
	objectsWritten.Inc()
	bytesWritten.Add(float64(counter.n))

	log.Info().
		Str("key", key).
		Uint8("writer", input.WriterID).
		Str("mime", mimeType).
		Str("size", humanize.Bytes(uint64(counter.n))).
		Msg("wrote new object")

	return &UploadResult{Key: key, SizeBytes: counter.n}, nil
}

// Download 打开对象，调用方负责关闭返回的 Object。
func (s *FileService) Download(ctx context.Context, key string, acceptsCompression bool) (*storage.Object, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("file service not initialized")
	}

	obj, err := s.store.Get(ctx, key, acceptsCompression)
	switch {
	case err == nil:
		objectReads.WithLabelValues("ok").Inc()
	case errors.Is(err, storage.ErrObjectNotFound):
		objectReads.WithLabelValues("not_found").Inc()
	case errors.Is(err, storage.ErrCorruptObject):
		objectReads.WithLabelValues("corrupt").Inc()
		log.Error().Err(err).Str("key", key).Msg("object has a bad container header")
	default:
		objectReads.WithLabelValues("error").Inc()
	}
	return obj, err
}

func normalizeName(name string) string {
	name = strings.ToValidUTF8(strings.TrimSpace(name), "\uFFFD")
	// 浏览器可能带上客户端路径，只保留最后一段
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func normalizeMimeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultMimeType
	}
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		return DefaultMimeType
	}
	return mime.FormatMediaType(mediaType, params)
}

// countingReader 统计实际读取的字节数。
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
