package geotiff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"gocloud.dev/blob"
)

// BlobReader implements Source for objects in cloud buckets (S3, GCS,
// Azure, local file buckets) via gocloud.dev/blob.
type BlobReader struct {
	ctx    context.Context
	bucket *blob.Bucket
	key    string
	size   int64

	// mu protects offset for the sequential Read/Seek path.
	mu     sync.Mutex
	offset int64
}

// NewBlobReader stats key in bucket and returns a reader over it. The
// attribute fetch doubles as the existence check, so a missing scene
// asset fails here rather than on first tile read.
func NewBlobReader(ctx context.Context, bucket *blob.Bucket, key string) (*BlobReader, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get attributes for key %s: %w", key, err)
	}

	return &BlobReader{
		ctx:    ctx,
		bucket: bucket,
		key:    key,
		size:   attrs.Size,
	}, nil
}

// Size returns the object size in bytes.
func (r *BlobReader) Size() int64 { return r.size }

// Read performs a sequential read.
func (r *BlobReader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.offset >= r.size {
		return 0, io.EOF
	}

	n, err = r.readAt(p, r.offset)
	if n > 0 {
		r.offset += int64(n)
	}
	return n, err
}

// Seek updates the offset for the next sequential Read.
func (r *BlobReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = r.offset + offset
	case io.SeekEnd:
		newOffset = r.size + offset
	default:
		return 0, errors.New("invalid whence")
	}

	if newOffset < 0 {
		return 0, errors.New("cannot seek to negative offset")
	}
	r.offset = newOffset
	return r.offset, nil
}

// ReadAt implements stateless positioned reads for concurrent tile
// fetches.
func (r *BlobReader) ReadAt(p []byte, off int64) (n int, err error) {
	return r.readAt(p, off)
}

func (r *BlobReader) readAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("blob.readAt: invalid offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	length := int64(len(p))
	if off+length > r.size {
		length = r.size - off
	}

	// gocloud range readers take offset and length, not an end byte.
	reader, err := r.bucket.NewRangeReader(r.ctx, r.key, off, length, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create range reader: %w", err)
	}
	defer reader.Close()

	return io.ReadFull(reader, p[:length])
}
