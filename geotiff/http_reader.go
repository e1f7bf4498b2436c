package geotiff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HTTPRangeReader implements Source for remote files served over HTTP
// with byte range support.
type HTTPRangeReader struct {
	ctx    context.Context
	url    string
	client *http.Client
	size   int64

	// mu protects offset for the sequential Read/Seek path.
	mu     sync.Mutex
	offset int64
}

// NewHTTPRangeReader probes url with a HEAD request and returns a
// reader over it. ctx bounds the probe and every subsequent range
// request, so cancelling the originating request stops in flight
// reads. A nil client falls back to http.DefaultClient.
func NewHTTPRangeReader(ctx context.Context, url string, client *http.Client) (*HTTPRangeReader, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create head request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http head request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status for http head request: %s", resp.Status)
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		return nil, errors.New("server does not accept byte range requests")
	}

	size := resp.ContentLength
	if size <= 0 {
		return nil, errors.New("could not determine content length or file is empty")
	}

	return &HTTPRangeReader{ctx: ctx, url: url, client: client, size: size}, nil
}

// Size returns the remote file size in bytes.
func (h *HTTPRangeReader) Size() int64 { return h.size }

// Read performs a sequential read. The lock is held for the whole
// network request, so the sequential path is not meant for concurrent
// use; tile fetches go through ReadAt instead.
func (h *HTTPRangeReader) Read(p []byte) (n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.offset >= h.size {
		return 0, io.EOF
	}

	n, err = h.readAt(p, h.offset)
	if n > 0 {
		h.offset += int64(n)
	}
	return n, err
}

// Seek updates the offset for the next sequential Read.
func (h *HTTPRangeReader) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = h.offset + offset
	case io.SeekEnd:
		newOffset = h.size + offset
	default:
		return 0, errors.New("invalid whence")
	}

	if newOffset < 0 {
		return 0, errors.New("cannot seek to negative offset")
	}
	h.offset = newOffset
	return h.offset, nil
}

// ReadAt implements stateless positioned reads. It does not touch the
// mutex or the sequential offset and is safe for concurrent use.
func (h *HTTPRangeReader) ReadAt(p []byte, off int64) (n int, err error) {
	return h.readAt(p, off)
}

func (h *HTTPRangeReader) readAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("http.readAt: invalid offset %d", off)
	}
	if off >= h.size {
		return 0, io.EOF
	}

	bytesToRead := int64(len(p))
	if off+bytesToRead > h.size {
		bytesToRead = h.size - off
	}

	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+bytesToRead-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("expected status 206 Partial Content, got: %s", resp.Status)
	}

	return io.ReadFull(resp.Body, p[:bytesToRead])
}
