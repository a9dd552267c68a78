package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client abstracts the S3 API operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps artifacts in an S3 bucket (or MinIO, R2, ...) under an
// optional key prefix. Public paths are built from publicBase, typically a
// CDN or bucket website URL.
type S3Store struct {
	client     S3Client
	bucket     string
	prefix     string
	publicBase string
}

// NewS3 creates an S3-backed store. The client must be configured with
// credentials, region and endpoint by the caller.
func NewS3(client S3Client, bucket, prefix, publicBase string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, publicBase: publicBase}
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	const op = "storage.save"
	if err := checkName(op, name); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(name)),
	})
	if err != nil {
		return "", storageErr(op, name, err)
	}
	return joinURL(s.publicBase, s.key(name)), nil
}

func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	const op = "storage.open"
	if err := checkName(op, name); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			err = fmt.Errorf("%w: %v", os.ErrNotExist, err)
		}
		return nil, storageErr(op, name, err)
	}
	return out.Body, nil
}

// Delete is idempotent because S3 DeleteObject succeeds for missing keys.
func (s *S3Store) Delete(ctx context.Context, name string) error {
	const op = "storage.delete"
	if err := checkName(op, name); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return storageErr(op, name, err)
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	const op = "storage.exists"
	if err := checkName(op, name); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, storageErr(op, name, err)
	}
	return true, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ ArtifactStore = (*S3Store)(nil)
