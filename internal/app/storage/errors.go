package storage

import "errors"

// ErrNotFound is returned by FindOne/UpdateOne/DeleteOne when no document
// matches the filter.
var ErrNotFound = errors.New("storage: document not found")
