package devserver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
)

// DefaultPresignExpiry is how long an upload URL stays valid.
const DefaultPresignExpiry = 15 * time.Minute

type putPresigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3PresignClient = func(cfg aws.Config, optFns ...func(*s3.Options)) putPresigner {
		return s3.NewPresignClient(s3.NewFromConfig(cfg, optFns...))
	}
)

type S3Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
	Expiry       time.Duration
}

// S3Presigner hands out presigned PUT URLs for the object keys clients
// derive from file contents.
type S3Presigner struct {
	cfg S3Config

	once    sync.Once
	client  putPresigner
	initErr error
}

func NewS3Presigner(cfg S3Config) *S3Presigner {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultPresignExpiry
	}
	return &S3Presigner{cfg: cfg}
}

func (p *S3Presigner) init(ctx context.Context) error {
	p.once.Do(func() {
		cfg, err := loadDefaultAWSConfig(ctx,
			awsconfig.WithRegion(p.cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				p.cfg.AccessKey, p.cfg.SecretKey, "",
			)))
		if err != nil {
			p.initErr = fmt.Errorf("%w: load aws config: %w", common.ErrRemoteUpload, err)
			return
		}
		p.client = newS3PresignClient(cfg, func(o *s3.Options) {
			if p.cfg.BaseEndpoint != "" {
				o.BaseEndpoint = aws.String(p.cfg.BaseEndpoint)
				o.UsePathStyle = true
			}
		})
	})
	return p.initErr
}

func (p *S3Presigner) PresignAttachmentUpload(ctx context.Context, req models.UploadRequest) (models.UploadTicket, error) {
	if req.Key == "" || strings.Contains(req.Key, "..") {
		return models.UploadTicket{}, fmt.Errorf("%w: invalid object key %q", common.ErrValidation, req.Key)
	}
	if err := p.init(ctx); err != nil {
		return models.UploadTicket{}, err
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(req.Key),
	}
	if req.ContentType != "" {
		in.ContentType = aws.String(req.ContentType)
	}
	signed, err := p.client.PresignPutObject(ctx, in, s3.WithPresignExpires(p.cfg.Expiry))
	if err != nil {
		return models.UploadTicket{}, fmt.Errorf("%w: presign %s: %w", common.ErrRemoteUpload, req.Key, err)
	}

	return models.UploadTicket{UploadURL: signed.URL, Locator: p.locator(req.Key)}, nil
}

func (p *S3Presigner) locator(key string) string {
	if p.cfg.BaseEndpoint != "" {
		return strings.TrimRight(p.cfg.BaseEndpoint, "/") + "/" + p.cfg.Bucket + "/" + key
	}
	return "s3://" + p.cfg.Bucket + "/" + key
}
