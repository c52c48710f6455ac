// Package storage сохраняет файлы подтверждения оплаты в объектном хранилище S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Config содержит параметры подключения к бакету.
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	PresignTTL    time.Duration
}

type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ProofStore загружает файлы и возвращает ссылку на них.
type ProofStore struct {
	client  putter
	presign presigner
	cfg     Config
	now     func() time.Time
}

// NewProofStore создаёт клиента S3. Если Endpoint задан, используется path-style адресация (MinIO и аналоги).
func NewProofStore(ctx context.Context, cfg Config) (*ProofStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 7 * 24 * time.Hour
	}

	return &ProofStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Upload сохраняет файл пользователя и возвращает ссылку на него.
func (s *ProofStore) Upload(ctx context.Context, userID uuid.UUID, filename string, body io.Reader, size int64) (string, error) {
	key := s.objectKey(userID, filename)

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	if s.cfg.PublicBaseURL != "" {
		return publicURL(s.cfg.PublicBaseURL, key)
	}

	presigned, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		},
		func(po *s3.PresignOptions) {
			po.Expires = s.cfg.PresignTTL
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to presign s3 url: %w", err)
	}
	return presigned.URL, nil
}

// objectKey строит ключ вида <user>/<unix ms>_<имя файла>.
func (s *ProofStore) objectKey(userID uuid.UUID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "proof"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return fmt.Sprintf("%s/%d_%s", userID, s.now().UnixMilli(), name)
}

func publicURL(base, key string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse public base url: %w", err)
	}
	return u.JoinPath(strings.Split(key, "/")...).String(), nil
}
