package aws_s3

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/IliaW/site-scrape-runner/config"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of *s3.Client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type BucketClient interface {
	WriteArtifact(ctx context.Context, localPath, key string) string
}

type S3BucketClient struct {
	client ObjectPutter
	cfg    *config.S3Config
	log    *slog.Logger
}

func NewS3BucketClient(ctx context.Context, cfg *config.S3Config, log *slog.Logger) (*S3BucketClient, error) {
	log.Info("connecting to s3...")
	s3Config, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	// LocalStack does not support `virtual host addressing style` that uses s3 by default.
	// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
	var s3client *s3.Client
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		s3client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		s3client = s3.NewFromConfig(s3Config)
	}
	log.Info("connected to s3")

	return NewWithClient(s3client, cfg, log), nil
}

func NewWithClient(client ObjectPutter, cfg *config.S3Config, log *slog.Logger) *S3BucketClient {
	return &S3BucketClient{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// WriteArtifact uploads the file at localPath under <key_prefix>/<key> and returns its link.
// Failures are logged and reported as an empty link.
func (bc *S3BucketClient) WriteArtifact(ctx context.Context, localPath, key string) string {
	f, err := os.Open(localPath)
	if err != nil {
		bc.log.Error("failed to open artifact.", slog.String("err", err.Error()))
		return ""
	}
	defer f.Close()

	s3Key := path.Join(bc.cfg.KeyPrefix, key)
	_, err = bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bc.cfg.BucketName,
		Key:    &s3Key,
		Body:   f,
	})
	if err != nil {
		bc.log.Error("failed to save artifact to s3.", slog.String("key", s3Key), slog.String("err", err.Error()))
		return ""
	}
	bc.log.Debug("artifact saved to s3.", slog.String("key", s3Key))

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bc.cfg.BucketName, bc.cfg.Region, s3Key)
}
