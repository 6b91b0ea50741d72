package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/cryptox"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type S3Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Uploader writes objects keyed by their BLAKE2b address, so retried
// uploads of the same bytes land on the same key.
type S3Uploader struct {
	cfg S3Config

	once    sync.Once
	client  objectPutter
	initErr error
}

func NewS3Uploader(cfg S3Config) *S3Uploader {
	return &S3Uploader{cfg: cfg}
}

func (u *S3Uploader) init(ctx context.Context) error {
	u.once.Do(func() {
		if u.cfg.AccessKey == "" || u.cfg.SecretKey == "" || u.cfg.Bucket == "" {
			u.initErr = fmt.Errorf("%w: s3 credentials not configured", common.ErrRemoteUpload)
			return
		}

		cfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(u.cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				u.cfg.AccessKey, u.cfg.SecretKey, "",
			)))
		if err != nil {
			u.initErr = fmt.Errorf("%w: load aws config: %w", common.ErrRemoteUpload, err)
			return
		}

		u.client = newS3ClientFromConfig(cfg, func(o *s3.Options) {
			if u.cfg.BaseEndpoint != "" {
				o.BaseEndpoint = aws.String(u.cfg.BaseEndpoint)
				o.UsePathStyle = true
			}
		})
	})
	return u.initErr
}

func (u *S3Uploader) Upload(ctx context.Context, file models.RawFile) (string, error) {
	if err := u.init(ctx); err != nil {
		return "", err
	}

	key := cryptox.ObjectKey(cryptox.ContentAddress(file.Data), file.Name)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(file.Data),
		ContentType:   aws.String(file.MimeType),
		ContentLength: aws.Int64(int64(len(file.Data))),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %w", common.ErrRemoteUpload, key, err)
	}

	return u.locator(key), nil
}

func (u *S3Uploader) locator(key string) string {
	if u.cfg.BaseEndpoint != "" {
		return strings.TrimRight(u.cfg.BaseEndpoint, "/") + "/" + u.cfg.Bucket + "/" + key
	}
	return "s3://" + u.cfg.Bucket + "/" + key
}
