package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	s3BackendName   = "s3"
	s3DefaultRegion = "us-east-1"
)

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBucket    bool
	Prefix          string
}

// S3 stores blob bytes in an S3 bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3 builds an S3 backend. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = s3DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}
	if cfg.CreateBucket {
		if err := backend.ensureBucket(ctx, cfg.Region); err != nil {
			return nil, err
		}
	}
	return backend, nil
}

// Backend returns the storage backend name recorded on blob rows.
func (b *S3) Backend() string {
	return s3BackendName
}

// Put uploads r to key, hashing the stream as it is sent.
func (b *S3) Put(ctx context.Context, key string, r io.Reader, mediaType string) (BlobPutResult, error) {
	var zero BlobPutResult
	if b == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return zero, fmt.Errorf("blob key is required")
	}

	h := sha256.New()
	counter := &countingReader{r: io.TeeReader(r, h)}
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectName(key)),
		Body:   counter,
	}
	if mediaType != "" {
		input.ContentType = aws.String(mediaType)
	}
	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return zero, fmt.Errorf("upload %s: %w", key, err)
	}

	return BlobPutResult{SHA256: hex.EncodeToString(h.Sum(nil)), SizeBytes: counter.n, BlobKey: key}, nil
}

// Open streams the object at key.
func (b *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if b == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectName(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object at key. Missing objects are ignored.
func (b *S3) Delete(ctx context.Context, key string) error {
	if b == nil {
		return fmt.Errorf("blob store is not configured")
	}
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectName(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Walk lists every object under the backend prefix.
func (b *S3) Walk(ctx context.Context, fn func(ObjectInfo) error) error {
	if b == nil {
		return fmt.Errorf("blob store is not configured")
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket)}
	if b.prefix != "" {
		input.Prefix = aws.String(b.prefix + "/")
	}
	pages := s3.NewListObjectsV2Paginator(b.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				Key:       b.keyFromObjectName(aws.ToString(obj.Key)),
				SizeBytes: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.ModifiedAt = obj.LastModified.UTC()
			}
			if err := fn(info); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *S3) ensureBucket(ctx context.Context, region string) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return nil
	}
	if !isS3NotFound(err) {
		return fmt.Errorf("check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if region != s3DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (b *S3) objectName(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *S3) keyFromObjectName(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, b.prefix+"/")
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ BlobStore = (*S3)(nil)
