package storage

import (
	"context"
	"io"
	"time"
)

// Writer 定义对象写接口，支持流式写入并返回分配到的对象 key。
type Writer interface {
	Put(ctx context.Context, r io.Reader, originalName, mimeType string, writerID uint8) (string, error)
}

// Reader 定义对象读接口，acceptsCompression 表示调用方能否直接接收压缩流。
type Reader interface {
	Get(ctx context.Context, key string, acceptsCompression bool) (*Object, error)
}

// Store 组合了读写能力的完整存储接口。
type Store interface {
	Writer
	Reader
}

// Metadata 是容器头中保存的对象元数据。
type Metadata struct {
	DateUploaded time.Time
	WriterID     uint8
	MimeType     string
	OriginalName string
}

// Object 描述一次读取的结果。Body 由调用方负责关闭。
type Object struct {
	Key      string
	Metadata Metadata
	// Encoding 为空表示 Body 已解压；否则为 Body 使用的 content-coding。
	Encoding string
	Body     io.ReadCloser
}

// Close 释放底层文件句柄。
func (o *Object) Close() error {
	if o == nil || o.Body == nil {
		return nil
	}
	return o.Body.Close()
}
