package service

import "errors"

var (
	// ErrDocumentBusy 表示同一文档正在被其他调用重建索引。
	ErrDocumentBusy = errors.New("document is being indexed by another worker")
	// ErrDocumentNotFound 表示文档不存在或不属于当前用户。
	ErrDocumentNotFound = errors.New("document not found")
)
