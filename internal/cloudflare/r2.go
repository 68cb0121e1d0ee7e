package cloudflare

import (
	"context"
	"net/url"
	"strconv"
)

// TokenStatusActive is the status of a usable API token
const TokenStatusActive = "active"

// TokenVerification is the result of /user/tokens/verify.
type TokenVerification struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	NotBefore string `json:"not_before,omitempty"`
	ExpiresOn string `json:"expires_on,omitempty"`
}

// OK reports whether the token can be used.
func (v *TokenVerification) OK() bool {
	return v.Status == TokenStatusActive
}

// Bucket is one entry of the bucket listing.
type Bucket struct {
	Name         string `json:"name"`
	CreationDate string `json:"creation_date"`
	Location     string `json:"location,omitempty"`
	StorageClass string `json:"storage_class,omitempty"`
}

type bucketList struct {
	Buckets []Bucket `json:"buckets"`
}

// Usage is the storage usage of a bucket. The API reports sizes as decimal strings.
type Usage struct {
	End                          string `json:"end,omitempty"`
	PayloadSize                  string `json:"payloadSize,omitempty"`
	MetadataSize                 string `json:"metadataSize,omitempty"`
	ObjectCount                  string `json:"objectCount,omitempty"`
	UploadCount                  string `json:"uploadCount,omitempty"`
	InfrequentAccessPayloadSize  string `json:"infrequentAccessPayloadSize,omitempty"`
	InfrequentAccessMetadataSize string `json:"infrequentAccessMetadataSize,omitempty"`
	InfrequentAccessObjectCount  string `json:"infrequentAccessObjectCount,omitempty"`
	InfrequentAccessUploadCount  string `json:"infrequentAccessUploadCount,omitempty"`
}

// Payload returns PayloadSize as a number; unparsable values count as zero.
func (u *Usage) Payload() int64 {
	return atoi(u.PayloadSize)
}

// Objects returns ObjectCount as a number; unparsable values count as zero.
func (u *Usage) Objects() int64 {
	return atoi(u.ObjectCount)
}

func atoi(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ListOptions are the query parameters of the bucket listing.
type ListOptions struct {
	Cursor     string
	Direction  string
	Order      string
	PerPage    int
	StartAfter string
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	if o.Direction != "" {
		q.Set("direction", o.Direction)
	}
	if o.Order != "" {
		q.Set("order", o.Order)
	}
	if o.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.StartAfter != "" {
		q.Set("start_after", o.StartAfter)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// VerifyToken checks the API token.
func (c *Client) VerifyToken(ctx context.Context) (*TokenVerification, error) {
	var v TokenVerification
	if err := c.get(ctx, "/user/tokens/verify", "verify", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListBuckets lists the R2 buckets of the account.
func (c *Client) ListBuckets(ctx context.Context, opts ListOptions) ([]Bucket, error) {
	var list bucketList
	if err := c.get(ctx, c.r2Path("buckets"+opts.query()), "list", &list); err != nil {
		return nil, err
	}
	if list.Buckets == nil {
		return []Bucket{}, nil
	}
	return list.Buckets, nil
}

// BucketUsage returns the storage usage of one bucket.
func (c *Client) BucketUsage(ctx context.Context, bucket string) (*Usage, error) {
	var u Usage
	if err := c.get(ctx, c.r2Path("buckets/"+url.PathEscape(bucket)+"/usage"), "usage", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteBucket deletes an (empty) bucket.
func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	return c.delete(ctx, c.r2Path("buckets/"+url.PathEscape(bucket)), "delete bucket", nil)
}
