package tiler

import (
	"context"
	"net/http"
	"strings"

	"gocloud.dev/blob"

	"github.com/sattiles/cbers/geotiff"
)

// BlobOpener reads scene assets from an object storage bucket.
type BlobOpener struct {
	Bucket *blob.Bucket
}

func (o *BlobOpener) Open(ctx context.Context, key string) (geotiff.Source, error) {
	return geotiff.NewBlobReader(ctx, o.Bucket, key)
}

// HTTPOpener reads scene assets from a range-capable HTTP mirror.
type HTTPOpener struct {
	BaseURL string
	Client  *http.Client
}

func (o *HTTPOpener) Open(ctx context.Context, key string) (geotiff.Source, error) {
	return geotiff.NewHTTPRangeReader(ctx, strings.TrimSuffix(o.BaseURL, "/")+"/"+key, o.Client)
}
