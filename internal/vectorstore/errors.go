package vectorstore

import "errors"

var (
	ErrStoreNotFound = errors.New("vectorstore: store not found")
	ErrFileNotFound  = errors.New("vectorstore: file not found")
)
