package objectstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
)

// Config describes an S3-compatible endpoint. An empty Endpoint means AWS itself.
type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
}

// S3Store implements Store on top of aws-sdk-go-v2.
type S3Store struct {
	cfg     Config
	client  *s3.Client
	presign *s3.PresignClient
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds the client. No request is made until the first call.
func NewS3Store(cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("objectstore: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := s3.Options{
		Region:                     cfg.Region,
		Credentials:                credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle:               cfg.UsePathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
	}

	client := s3.New(opts)
	return &S3Store{
		cfg:     cfg,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (s *S3Store) PresignPut(ctx context.Context, key string, opts PutOptions) (*PresignedRequest, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.Size > 0 {
		in.ContentLength = aws.Int64(opts.Size)
	}

	req, err := s.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(opts.TTL))
	if err != nil {
		return nil, errors.Wrapf(err, "presign put %s", key)
	}
	return toPresigned(req.URL, req.Method, req.SignedHeader, opts.TTL), nil
}

func (s *S3Store) PresignGet(ctx context.Context, key string, opts GetOptions) (*PresignedRequest, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}
	if opts.FileName != "" {
		in.ResponseContentDisposition = aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": opts.FileName}))
	}

	req, err := s.presign.PresignGetObject(ctx, in, s3.WithPresignExpires(opts.TTL))
	if err != nil {
		return nil, errors.Wrapf(err, "presign get %s", key)
	}
	return toPresigned(req.URL, req.Method, req.SignedHeader, opts.TTL), nil
}

func (s *S3Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "head %s", key)
	}
	return &ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (s *S3Store) Sniff(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", SniffBytes-1)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotFound
		}
		return "", errors.Wrapf(err, "get %s", key)
	}
	defer out.Body.Close()

	head, err := io.ReadAll(io.LimitReader(out.Body, SniffBytes))
	if err != nil {
		return "", errors.Wrapf(err, "read %s", key)
	}
	return DetectMIME(head), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

// PublicURL is where a ready image can be fetched without signing.
func (s *S3Store) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// DetectMIME returns the media type of head without parameters.
func DetectMIME(head []byte) string {
	mt := mimetype.Detect(head).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

func toPresigned(url, method string, signed http.Header, ttl time.Duration) *PresignedRequest {
	headers := make(map[string]string, len(signed))
	for k, v := range signed {
		// browsers set these themselves
		if strings.EqualFold(k, "Host") || strings.EqualFold(k, "Content-Length") || len(v) == 0 {
			continue
		}
		headers[k] = v[0]
	}
	return &PresignedRequest{
		URL:       url,
		Method:    method,
		Headers:   headers,
		ExpiresAt: time.Now().Add(ttl).UTC(),
	}
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
