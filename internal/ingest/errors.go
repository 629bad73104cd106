package ingest

import "errors"

// ErrClientClosed is returned by Flush once Close has been called
var ErrClientClosed = errors.New("ingest client is closed")
