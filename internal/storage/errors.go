package storage

import "errors"

// Error taxonomy returned by Store implementations. Callers match with errors.Is.
var (
	// ErrObjectNotFound 表示 key 没有对应的文件。
	ErrObjectNotFound = errors.New("storage: object not found")

	// ErrCorruptObject 表示文件存在但容器头无法解析。
	ErrCorruptObject = errors.New("storage: corrupt object")

	// ErrAllocationExhausted 表示名称分配超过重试上限，属于暂时性服务端错误。
	ErrAllocationExhausted = errors.New("storage: name allocation exhausted")

	// ErrInvalidObject 表示元数据无法编码进容器头（例如字符串过长）。
	ErrInvalidObject = errors.New("storage: invalid object metadata")

	// ErrIOFailure 包装其他未分类的文件系统错误。
	ErrIOFailure = errors.New("storage: io failure")
)
