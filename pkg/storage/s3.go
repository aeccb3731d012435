package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of the S3 API used by S3Store. *s3.Client
// satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes an archive bucket.
type S3Config struct {
	Bucket string `yaml:"bucket" validate:"required"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`

	// Endpoint selects an S3-compatible service such as MinIO. Path-style
	// addressing is used when it is set.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// AccessKey and SecretKey fall back to AWS_ACCESS_KEY_ID and
	// AWS_SECRET_ACCESS_KEY.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// S3Store implements FileStore on an S3 bucket. Storage paths map to
// object keys under an optional prefix.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

var (
	_ FileStore = (*S3Store)(nil)
	_ Uploader  = (*S3Store)(nil)
)

// NewS3 creates an S3Store on a configured client.
func NewS3(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3FromConfig builds an s3.Client from cfg and wraps it.
func NewS3FromConfig(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	ak, sk := cfg.AccessKey, cfg.SecretKey
	if ak == "" {
		ak = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if sk == "" {
		sk = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if ak == "" || sk == "" {
		return nil, errors.New("storage: s3 credentials are not set")
	}

	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(ak, sk, os.Getenv("AWS_SESSION_TOKEN")),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return NewS3(s3.New(opts), cfg.Bucket, cfg.Prefix), nil
}

func (s *S3Store) key(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// URI returns the s3:// URI of a storage path.
func (s *S3Store) URI(path string) string {
	return "s3://" + s.bucket + "/" + s.key(path)
}

// Write streams to a PutObject call running in the background. Close
// waits for the upload and returns its error.
func (s *S3Store) Write(ctx context.Context, path string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(path)),
			ContentType: aws.String(ContentType(path)),
			Body:        pr,
		})
		w.err = s3Error(err)
		pr.CloseWithError(w.err)
	}()
	return w, nil
}

// Upload puts a seekable body in a single request.
func (s *S3Store) Upload(ctx context.Context, path string, body io.ReadSeeker, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(path)),
		ContentType:   aws.String(ContentType(path)),
		ContentLength: aws.Int64(size),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("storage: upload %s: %w", s.URI(path), s3Error(err))
	}
	return nil
}

type s3Writer struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	w.pw.Close()
	<-w.done
	return w.err
}

// s3Error makes a missing bucket match os.ErrNotExist.
func s3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
		return fmt.Errorf("%w: %w", os.ErrNotExist, err)
	}
	return err
}
