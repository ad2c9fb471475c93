package service

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	appdto "github.com/vibast-solutions/ms-go-accounts/app/dto"
	serverconfig "github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type objectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MediaService stores uploaded images in an S3-compatible bucket and hands
// back durable public URLs. The client is built once at startup; there is no
// ambient shared configuration.
type MediaService struct {
	client        objectStore
	bucket        string
	publicBaseURL string
}

func NewMediaService(cfg *serverconfig.Config) (*MediaService, error) {
	media := cfg.Media

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(media.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			media.AccessKey,
			media.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load media store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if media.Endpoint != "" {
			o.BaseEndpoint = aws.String(media.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := media.PublicBaseURL
	if publicBase == "" {
		publicBase = media.Endpoint
	}

	return &MediaService{
		client:        client,
		bucket:        media.Bucket,
		publicBaseURL: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Upload streams one file into the bucket under the given key prefix and
// returns its public URL.
func (s *MediaService) Upload(ctx context.Context, prefix string, file *appdto.FileUpload) (string, error) {
	key := storageKey(prefix, file.Filename)

	contentType := file.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(file.Filename))
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file.Content,
		ContentType: aws.String(contentType),
	}
	// Multipart uploads carry the part size; passing it along lets the store
	// skip buffering the stream to determine the length.
	if file.Size > 0 {
		input.ContentLength = aws.Int64(file.Size)
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return s.objectURL(key), nil
}

func (s *MediaService) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
}

func storageKey(prefix, filename string) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s", prefix, d.Year(), d.Month(), d.Day(), uuid.New(), filepath.Ext(filename))
}
