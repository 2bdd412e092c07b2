package supabase

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Bucket はオブジェクトストレージの1バケット。
type Bucket struct {
	client *Client
	name   string
}

// NewBucket はBucketを生成する。
func NewBucket(client *Client, name string) *Bucket {
	return &Bucket{client: client, name: name}
}

// Name はバケット名を返す。
func (b *Bucket) Name() string {
	return b.name
}

// Upload はオブジェクトを保存する。upsertがtrueの場合は既存オブジェクトを上書きする。
func (b *Bucket) Upload(ctx context.Context, path, contentType string, data []byte, upsert bool) error {
	return b.client.do(ctx, request{
		method:      http.MethodPost,
		path:        b.objectPath("/storage/v1/object/", path),
		header:      http.Header{"x-upsert": {strconv.FormatBool(upsert)}, "Cache-Control": {"max-age=3600"}},
		body:        bytes.NewReader(data),
		contentType: contentType,
	}, nil)
}

// PublicURL は公開バケット上のオブジェクトのURLを返す。
func (b *Bucket) PublicURL(path string) string {
	return b.client.baseURL + b.objectPath("/storage/v1/object/public/", path)
}

func (b *Bucket) objectPath(prefix, path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return prefix + url.PathEscape(b.name) + "/" + strings.Join(segments, "/")
}
