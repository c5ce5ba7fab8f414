package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/tracing/smithyoteltracing"
	"github.com/otakit/otastore/internal/trace"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultS3PageSize = 50
	maxS3PageSize     = 1000
	copyWaitTimeout   = 5 * time.Minute
)

// Options holds configuration for S3Blob and can be constructed from an S3 URL in a similar way to gocloud.dev
// Example S3 URLs:
//
//	s3://my-bucket
//	s3://my-bucket/prefix
//	s3://my-bucket?region=us-east-1
//	s3://my-bucket/prefix?region=us-east-1&endpoint=http://localhost:9000&use_path_style=true&page_size=100
type Options struct {
	S3Endpoint   string
	Bucket       string
	Region       string
	Prefix       string
	UsePathStyle bool
	PageSize     int32
}

func OptionsFromURL(s3url string) (*Options, error) {
	u, err := url.Parse(s3url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse S3 URL: %w", err)
	}

	// check the scheme is s3
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid S3 URL scheme %q: must be s3", u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("S3 URL %q has no bucket", s3url)
	}

	q := u.Query()

	opts := &Options{
		Bucket:     u.Hostname(),
		Prefix:     strings.Trim(u.Path, "/"),
		Region:     q.Get("region"),
		S3Endpoint: q.Get("endpoint"),
		PageSize:   defaultS3PageSize,
	}

	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	if q.Get("use_path_style") == "true" {
		opts.UsePathStyle = true
	}

	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid page_size value %q: %w", v, err)
		}
		if n < 1 || n > maxS3PageSize {
			return nil, fmt.Errorf("page_size must be between 1 and %d, got %d", maxS3PageSize, n)
		}
		opts.PageSize = int32(n)
	}

	return opts, nil
}

// S3Blob implements the Storage interface using AWS S3
type S3Blob struct {
	client     *s3.Client
	bucketName string
	prefix     string
	pageSize   int32
}

// Ensure S3Blob implements the Backend interface
var _ Backend = (*S3Blob)(nil)

// NewS3Blob creates a new S3Blob instance using an S3 URL
func NewS3Blob(ctx context.Context, s3url string) (*S3Blob, error) {
	opts, err := OptionsFromURL(s3url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	// Load the AWS configuration
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Debug().
		Str("bucket", opts.Bucket).
		Str("region", opts.Region).
		Str("prefix", opts.Prefix).
		Str("endpoint", opts.S3Endpoint).
		Int32("page_size", opts.PageSize).
		Msg("configured S3 bucket")

	client := s3.NewFromConfig(cfg,
		func(o *s3.Options) {
			o.TracerProvider = smithyoteltracing.Adapt(otel.GetTracerProvider())
			o.Region = opts.Region
			o.UsePathStyle = opts.UsePathStyle

			// used for local testing or custom S3 endpoints
			if opts.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(opts.S3Endpoint)
			}
		})

	return &S3Blob{
		client:     client,
		bucketName: opts.Bucket,
		prefix:     opts.Prefix,
		pageSize:   opts.PageSize,
	}, nil
}

// Close is a no-op, the S3 client has nothing to release.
func (b *S3Blob) Close() error { return nil }

// UploadFile uploads content to S3
func (b *S3Blob) UploadFile(ctx context.Context, path string, content []byte) (string, error) {
	ctx, span := trace.Start(ctx, "S3Blob.UploadFile")
	defer span.End()

	if err := validatePath(path); err != nil {
		return "", err
	}

	start := time.Now()

	result, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(b.getFullKey(path)),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentTypeFor(path)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", path, err)
	}

	requestID, _ := middleware.GetRequestIDMetadata(result.ResultMetadata)

	span.SetAttributes(
		attribute.Int("bytes_transferred", len(content)),
		attribute.String("transfer_speed", fmt.Sprintf("%.2fMB/s", calculateTransferSpeedMBps(int64(len(content)), time.Since(start)))),
		attribute.String("request_id", requestID),
	)

	return path, nil
}

// DownloadFile downloads an object from S3
func (b *S3Blob) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	ctx, span := trace.Start(ctx, "S3Blob.DownloadFile")
	defer span.End()

	start := time.Now()

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.getFullKey(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("failed to download %s from S3: %w: %w", path, ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to download %s from S3: %w", path, err)
	}
	defer func() {
		_ = result.Body.Close()
	}()

	requestID, _ := middleware.GetRequestIDMetadata(result.ResultMetadata)

	var buf bytes.Buffer
	n, err := buf.ReadFrom(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object contents: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("bytes_transferred", n),
		attribute.String("transfer_speed", fmt.Sprintf("%.2fMB/s", calculateTransferSpeedMBps(n, time.Since(start)))),
		attribute.String("request_id", requestID),
	)

	return buf.Bytes(), nil
}

// FileExists reports whether any key starts with path
func (b *S3Blob) FileExists(ctx context.Context, path string) (bool, error) {
	ctx, span := trace.Start(ctx, "S3Blob.FileExists")
	defer span.End()

	span.SetAttributes(attribute.String("prefix", path))

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucketName),
		Prefix:  aws.String(b.getFullKey(path)),
		MaxKeys: aws.Int32(1),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list objects with prefix %s: %w", path, err)
		}
		if len(page.Contents) > 0 {
			return true, nil
		}
	}

	return false, nil
}

// ListFiles lists every object below directory
func (b *S3Blob) ListFiles(ctx context.Context, directory string) ([]FileRecord, error) {
	ctx, span := trace.Start(ctx, "S3Blob.ListFiles")
	defer span.End()

	prefix := b.getFullKey(directoryPrefix(directory))

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucketName),
		Prefix:  optionalString(prefix),
		MaxKeys: aws.Int32(b.pageSize),
	})

	files := []FileRecord{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", directory, err)
		}
		for _, obj := range page.Contents {
			files = append(files, s3FileRecord(obj, prefix))
		}
	}

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("files", len(files)),
	)

	return files, nil
}

// ListDirectories lists the common prefixes one level below directory
func (b *S3Blob) ListDirectories(ctx context.Context, directory string) ([]string, error) {
	ctx, span := trace.Start(ctx, "S3Blob.ListDirectories")
	defer span.End()

	prefix := b.getFullKey(directoryPrefix(directory))

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucketName),
		Prefix:    optionalString(prefix),
		Delimiter: aws.String(pathSeparator),
		MaxKeys:   aws.Int32(b.pageSize),
	})

	directories := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list directories in %s: %w", directory, err)
		}
		for _, cp := range page.CommonPrefixes {
			directories = append(directories, directoryName(aws.ToString(cp.Prefix), prefix))
		}
	}

	span.SetAttributes(
		attribute.String("prefix", prefix),
		attribute.Int("directories", len(directories)),
	)

	return directories, nil
}

// CopyFile copies an object server side and waits until the destination is readable
func (b *S3Blob) CopyFile(ctx context.Context, sourcePath, destinationPath string) error {
	ctx, span := trace.Start(ctx, "S3Blob.CopyFile")
	defer span.End()

	srcKey := b.getFullKey(sourcePath)
	dstKey := b.getFullKey(destinationPath)

	span.SetAttributes(
		attribute.String("source_key", srcKey),
		attribute.String("destination_key", dstKey),
	)

	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucketName),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(b.bucketName, srcKey)),
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", sourcePath, destinationPath, err)
	}

	waiter := s3.NewObjectExistsWaiter(b.client)
	err = waiter.Wait(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(dstKey),
	}, copyWaitTimeout)
	if err != nil {
		return fmt.Errorf("failed waiting for copy of %s to %s: %w", sourcePath, destinationPath, err)
	}

	return nil
}

// getFullKey combines the prefix with the key, keeping any trailing slash so
// the result can be used as a listing prefix
func (b *S3Blob) getFullKey(key string) string {
	// Remove leading slash from key if present
	key = strings.TrimPrefix(key, "/")
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

// copySource builds the URL encoded bucket/key value CopyObject expects
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func s3FileRecord(obj types.Object, prefix string) FileRecord {
	key := aws.ToString(obj.Key)

	var modified time.Time
	if obj.LastModified != nil {
		modified = obj.LastModified.UTC()
	}

	return FileRecord{
		Name:      relativeName(key, prefix),
		UpdatedAt: modified,
		// S3 does not track creation time separately
		CreatedAt: modified,
		Metadata: FileMetadata{
			Size: aws.ToInt64(obj.Size),
			// listings carry no content type, uploads set it from the extension
			MimeType: contentTypeFor(key),
		},
	}
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
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
