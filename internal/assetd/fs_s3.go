package assetd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// s3FS serves assets out of a bucket. Physical paths are slash separated and
// map to object keys under prefix.
type s3FS struct {
	client s3iface.S3API
	bucket string
	prefix string
}

func NewS3FileSystem(client s3iface.S3API, bucket, prefix string) FileSystem {
	return &s3FS{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// newS3Client builds a client from the default credential chain.
func newS3Client(region, endpoint string) (s3iface.S3API, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return s3.New(sess), nil
}

func (f *s3FS) key(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if f.prefix == "" {
		return name
	}
	return f.prefix + "/" + name
}

func (f *s3FS) Stat(ctx context.Context, name string) (FileInfo, error) {
	out, err := f.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(name)),
	})
	if err != nil {
		return FileInfo{}, translateS3Error(name, err)
	}
	return FileInfo{
		Size:    aws.Int64Value(out.ContentLength),
		ModTime: aws.TimeValue(out.LastModified),
	}, nil
}

func (f *s3FS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	out, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(name)),
	})
	if err != nil {
		return nil, translateS3Error(name, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func translateS3Error(name string, err error) error {
	var aerr awserr.RequestFailure
	if errors.As(err, &aerr) && aerr.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("s3 object %s: %w", name, fs.ErrNotExist)
	}
	var cerr awserr.Error
	if errors.As(err, &cerr) {
		switch cerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("s3 object %s: %w", name, fs.ErrNotExist)
		}
	}
	return fmt.Errorf("s3 object %s: %w", name, err)
}
