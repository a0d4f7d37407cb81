// Package publish uploads finished archives to object storage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/config"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/logger"
	"github.com/GabrielValdiviaGaboloso/videoyolo/internal/service"
)

// ArchiveName is the object name of every published archive
const ArchiveName = "detections.zip"

// S3Publisher copies archives to an S3 bucket
type S3Publisher struct {
	*service.ServiceBase

	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Publisher creates a publisher for the configured bucket
func NewS3Publisher(cfg config.S3Config, log *logger.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	// Without static keys the SDK's default chain (env, shared config, instance role) applies
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &S3Publisher{
		ServiceBase: service.NewServiceBase("s3-publisher", log),
		client:      s3.New(sess),
		uploader:    s3manager.NewUploader(sess),
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
	}, nil
}

// Start checks the bucket is reachable. An unreachable bucket is logged,
// uploads are still attempted per job.
func (p *S3Publisher) Start(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusRunning)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := p.client.HeadBucketWithContext(checkCtx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		p.LogWarn("S3 bucket not reachable", "bucket", p.bucket, "error", err)
		return nil
	}

	p.LogInfo("S3 publisher ready", "bucket", p.bucket, "prefix", p.prefix)
	return nil
}

// Stop implements service.Service
func (p *S3Publisher) Stop(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

// Key returns the object key for a job's archive
func (p *S3Publisher) Key(jobID string) string {
	return path.Join(p.prefix, jobID, ArchiveName)
}

// Publish uploads the archive at archivePath and returns its location
func (p *S3Publisher) Publish(ctx context.Context, jobID, archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	key := p.Key(jobID)
	out, err := p.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive to s3://%s/%s: %w", p.bucket, key, err)
	}

	p.LogInfo("Archive published", "job_id", jobID, "location", out.Location)
	p.PublishEvent(service.EventTypeArchivePublished, map[string]interface{}{
		"job_id":   jobID,
		"bucket":   p.bucket,
		"key":      key,
		"location": out.Location,
	})

	return out.Location, nil
}
