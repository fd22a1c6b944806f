package objectstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/openaleph/lakehouse-go/internal/lakeerrors"
)

// S3Config describes an S3-compatible endpoint, following the
// url/accessKey/secretKey/region/bucket parameter shape the teacher's
// storage helpers take (evalgo-org-eve's HetznerUploadFile etc.), generalized
// here into one struct instead of five positional strings.
type S3Config struct {
	Endpoint  string // empty for native AWS S3
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string // key prefix within the bucket for this dataset
}

// S3Store is the S3-compatible object storage backend, used for datasets
// whose LAKEHOUSE_URI points at an s3:// location.
type S3Store struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3 builds an S3Store, following the teacher's
// config.LoadDefaultConfig + credentials.NewStaticCredentialsProvider +
// custom endpoint resolver pattern.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{cfg: cfg, client: client}, nil
}

func (s *S3Store) key(k string) string {
	if s.cfg.Prefix == "" {
		return k
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + k
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, lakeerrors.Wrap(lakeerrors.Transient, "objectstore.Exists", err)
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	return withRetry(ctx, "objectstore.Put", func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(s.key(key)),
			Body:   strings.NewReader(string(data)),
		})
		if err != nil {
			return lakeerrors.Wrap(lakeerrors.Transient, "objectstore.Put", err)
		}
		return nil
	})
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.OpenRange(ctx, key, 0, -1)
}

func (s *S3Store) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	}
	if offset > 0 || length >= 0 {
		var rangeVal string
		if length < 0 {
			rangeVal = fmt.Sprintf("bytes=%d-", offset)
		} else {
			rangeVal = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
		}
		in.Range = aws.String(rangeVal)
	}
	var out *s3.GetObjectOutput
	err := withRetry(ctx, "objectstore.OpenRange", func() error {
		o, err := s.client.GetObject(ctx, in)
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return backoffPermanent(lakeerrors.WrapKey(lakeerrors.NotFound, "objectstore.OpenRange", key, err))
			}
			return lakeerrors.Wrap(lakeerrors.Transient, "objectstore.OpenRange", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *S3Store) IterateKeys(ctx context.Context, prefix, glob, exclude string) (func(yield func(string, error) bool), error) {
	var keys []string
	var continuationToken *string
	fullPrefix := s.key(prefix)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, lakeerrors.Wrap(lakeerrors.Transient, "objectstore.IterateKeys", err)
		}
		for _, obj := range out.Contents {
			k := strings.TrimPrefix(*obj.Key, s.cfg.Prefix)
			k = strings.TrimPrefix(k, "/")
			base := k
			if idx := strings.LastIndex(k, "/"); idx >= 0 {
				base = k[idx+1:]
			}
			if glob != "" {
				if ok, _ := matchGlob(glob, base); !ok {
					continue
				}
			}
			if exclude != "" {
				if ok, _ := matchGlob(exclude, base); ok {
					continue
				}
			}
			keys = append(keys, k)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuationToken = out.NextContinuationToken
	}
	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return lakeerrors.Wrap(lakeerrors.Transient, "objectstore.Delete", err)
	}
	return nil
}

func (s *S3Store) LocalPath(ctx context.Context, key string) (string, func(), error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	f, err := os.CreateTemp("", "lakehouse-s3-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp for %s: %w", key, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("download %s: %w", key, err)
	}
	name := f.Name()
	f.Close()
	return name, func() { os.Remove(name) }, nil
}

func (s *S3Store) Checksum(ctx context.Context, key string) (string, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	h := sha1.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("hash %s: %w", key, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
