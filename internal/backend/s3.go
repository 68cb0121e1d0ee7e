package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/r2d2/r2d2/pkg/models"
)

// S3Store implements Store for S3-compatible services (Cloudflare R2, AWS, MinIO)
type S3Store struct {
	client       *s3.Client
	bucket       string
	endpoint     string
	maxBandwidth int64

	mu     sync.RWMutex
	closed bool
}

// NewS3Store builds an S3 client from cfg
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// R2 rejects the default CRC trailers on streaming uploads
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return NewS3StoreFromClient(client, cfg), nil
}

// NewS3StoreFromClient wraps an existing client
func NewS3StoreFromClient(client *s3.Client, cfg Config) *S3Store {
	return &S3Store{
		client:       client,
		bucket:       cfg.Bucket,
		endpoint:     cfg.Endpoint,
		maxBandwidth: cfg.MaxBandwidth,
	}
}

func (s *S3Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Stat returns object metadata via HeadObject
func (s *S3Store) Stat(ctx context.Context, key string) (Entry, error) {
	if err := s.checkOpen(); err != nil {
		return Entry{}, err
	}

	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("s3 head object: %w", err)
	}

	return Entry{
		Key:  key,
		Name: entryName(key),
		Size: aws.ToInt64(resp.ContentLength),
	}, nil
}

// Read downloads a whole object
func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, key, nil)
}

// ReadRange downloads [offset, offset+length) using a range request
func (s *S3Store) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	return s.get(ctx, key, aws.String(rangeHeader))
}

func (s *S3Store) get(ctx context.Context, key string, rangeHeader *string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  rangeHeader,
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrNotFound
		}
		if rangeHeader != nil && isInvalidRangeError(err) {
			// Range starts at or past the end of the object
			return []byte{}, nil
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}
	return data, nil
}

// Write uploads data with a single PutObject
func (s *S3Store) Write(ctx context.Context, key string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          s.throttle(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// Delete removes an object. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// List pages through ListObjectsV2. Non-recursive listings use "/" as
// delimiter and report common prefixes as directories.
func (s *S3Store) List(ctx context.Context, prefix string, recursive bool) ([]Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}

		for _, cp := range page.CommonPrefixes {
			key := aws.ToString(cp.Prefix)
			entries = append(entries, Entry{
				Key:   key,
				Name:  entryName(key),
				IsDir: true,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix && strings.HasSuffix(key, "/") {
				continue
			}
			entries = append(entries, Entry{
				Key:  key,
				Name: entryName(key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	return entries, nil
}

// RemoveAll batch-deletes every object under prefix
func (s *S3Store) RemoveAll(ctx context.Context, prefix string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list objects: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		// Batch delete (up to 1000 per call)
		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("s3 delete objects: %d failed, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	return nil
}

// Location returns the endpoint URL, or an s3:// URL when using AWS defaults
func (s *S3Store) Location() string {
	if s.endpoint != "" {
		return s.endpoint
	}
	return "s3://" + s.bucket
}

// Close marks the store as closed
func (s *S3Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CreateMultipart starts a multipart upload
func (s *S3Store) CreateMultipart(ctx context.Context, key string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	result, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}
	return aws.ToString(result.UploadId), nil
}

// UploadPart sends one part of a multipart upload
func (s *S3Store) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          s.throttle(body),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}
	return aws.ToString(result.ETag), nil
}

// CompleteMultipart assembles the uploaded parts, sorted by part number
func (s *S3Store) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return *completed[i].PartNumber < *completed[j].PartNumber
	})

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

// AbortMultipart discards an upload session
func (s *S3Store) AbortMultipart(ctx context.Context, key, uploadID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noUpload *types.NoSuchUpload
		if errors.As(err, &noUpload) {
			return ErrUploadNotFound
		}
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

func (s *S3Store) throttle(r io.ReadSeeker) io.ReadSeeker {
	if s.maxBandwidth <= 0 {
		return r
	}
	return newThrottledReader(r, s.maxBandwidth)
}

// isNotFoundError checks if an error is an S3 not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

func isInvalidRangeError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
		return true
	}
	var statusErr interface{ HTTPStatusCode() int }
	return errors.As(err, &statusErr) && statusErr.HTTPStatusCode() == http.StatusRequestedRangeNotSatisfiable
}

// throttledReader limits read bandwidth. Seek is forwarded so the SDK can
// rewind bodies on retry.
type throttledReader struct {
	reader      io.ReadSeeker
	bytesPerSec int64
	started     time.Time
	bytesRead   int64
}

func newThrottledReader(r io.ReadSeeker, bytesPerSec int64) *throttledReader {
	return &throttledReader{
		reader:      r,
		bytesPerSec: bytesPerSec,
		started:     time.Now(),
	}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	elapsed := time.Since(t.started)
	expected := time.Duration(float64(t.bytesRead) / float64(t.bytesPerSec) * float64(time.Second))
	if expected > elapsed {
		time.Sleep(expected - elapsed)
	}

	n, err := t.reader.Read(p)
	t.bytesRead += int64(n)
	return n, err
}

func (t *throttledReader) Seek(offset int64, whence int) (int64, error) {
	t.started = time.Now()
	t.bytesRead = 0
	return t.reader.Seek(offset, whence)
}
