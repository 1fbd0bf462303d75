// Package source resolves a request's file path to a local file. Plain
// paths are used in place; s3://bucket/key objects are downloaded to a
// temporary file.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

const s3Scheme = "s3://"

// ObjectGetter is the part of the S3 client the resolver needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Resolver turns request paths into readable local files.
type Resolver struct {
	s3       ObjectGetter
	tempDir  string
	maxBytes int64
	logger   *zap.Logger
}

// NewResolver builds a Resolver. The S3 client uses static credentials and
// path-style addressing when an endpoint is configured (MinIO and other
// S3-compatible stores); otherwise the default AWS credential chain applies.
func NewResolver(cfg common.StorageConfig, tempDir string, maxBytes int64, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewResolverWithClient(client, tempDir, maxBytes, logger), nil
}

// NewResolverWithClient builds a Resolver over an existing S3 client.
func NewResolverWithClient(client ObjectGetter, tempDir string, maxBytes int64, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{s3: client, tempDir: tempDir, maxBytes: maxBytes, logger: logger}
}

// IsRemote reports whether p names an object in S3.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, s3Scheme)
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsRemote(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, s3Scheme), "/")
	if bucket == "" || key == "" {
		return "", "", common.NewAppError("INVALID_INPUT", fmt.Sprintf("malformed s3 uri %q", uri), common.ErrInvalidInput)
	}
	return bucket, key, nil
}

// Base returns the file name part of a local path or S3 key.
func Base(p string) string {
	if IsRemote(p) {
		return path.Base(p)
	}
	return filepath.Base(p)
}

// Stat checks that a local path exists and is within the size cap. Remote
// paths are checked during Fetch.
func (r *Resolver) Stat(p string) error {
	if IsRemote(p) {
		return nil
	}
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return common.NewAppError("FILE_NOT_FOUND", "File not found: "+p, common.ErrFileNotFound)
		}
		return common.NewAppError("FILE_NOT_FOUND", "cannot access "+p, errors.Join(common.ErrFileNotFound, err))
	}
	if st.IsDir() {
		return common.NewAppError("INVALID_INPUT", p+" is a directory", common.ErrInvalidInput)
	}
	return r.checkSize(p, st.Size())
}

// Fetch returns a local path for p. For remote objects the returned cleanup
// removes the downloaded copy; for local files it does nothing. cleanup is
// never nil.
func (r *Resolver) Fetch(ctx context.Context, p string) (string, func(), error) {
	noop := func() {}
	if !IsRemote(p) {
		return p, noop, nil
	}

	bucket, key, err := ParseS3URI(p)
	if err != nil {
		return "", noop, err
	}

	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", noop, common.NewAppError("FILE_NOT_FOUND", "File not found: "+p, common.ErrFileNotFound)
		}
		return "", noop, fmt.Errorf("failed to get %s: %w", p, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil {
		if err := r.checkSize(p, *out.ContentLength); err != nil {
			return "", noop, err
		}
	}

	f, err := os.CreateTemp(r.tempDir, "cad-src-"+uuid.NewString()[:8]+"-*"+path.Ext(key))
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to remove downloaded file", zap.String("path", f.Name()), zap.Error(err))
		}
	}

	var body io.Reader = out.Body
	if r.maxBytes > 0 {
		body = io.LimitReader(out.Body, r.maxBytes+1)
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to download %s: %w", p, err)
	}
	if err := r.checkSize(p, n); err != nil {
		cleanup()
		return "", noop, err
	}

	r.logger.Info("downloaded drawing", zap.String("uri", p), zap.Int64("bytes", n))
	return f.Name(), cleanup, nil
}

func (r *Resolver) checkSize(p string, size int64) error {
	if r.maxBytes > 0 && size > r.maxBytes {
		return common.NewAppError("FILE_TOO_LARGE",
			fmt.Sprintf("%s is %d bytes; the limit is %d", p, size, r.maxBytes),
			common.ErrFileTooLarge)
	}
	return nil
}
