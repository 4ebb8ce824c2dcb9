package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"tutorhub_go/config"
)

// ArtifactStore resolves recording/insight artifact keys to presigned
// download URLs. The external producers write the objects and stamp the
// keys onto the lesson row; this service only ever reads.
type ArtifactStore struct {
	awsConfig aws.Config
	bucket    string
	urlTTL    time.Duration
}

func NewArtifactStore() (*ArtifactStore, error) {
	cfg, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(config.AppConfig.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &ArtifactStore{
		awsConfig: cfg,
		bucket:    config.AppConfig.ArtifactBucket,
		urlTTL:    config.AppConfig.RecordingURLTTL,
	}, nil
}

// PresignDownload returns a time-limited GET URL for an artifact key.
func (a *ArtifactStore) PresignDownload(ctx context.Context, key string) (string, error) {
	if a.awsConfig.Region == "" {
		return "", fmt.Errorf("AWS region not configured")
	}

	client := s3.NewFromConfig(a.awsConfig)
	presigner := s3.NewPresignClient(client)

	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.urlTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign artifact %s: %w", key, err)
	}

	return req.URL, nil
}

// NewRoomReference mints an opaque room token. Used by the dev seeder and
// the provisioning webhook; real deployments receive the token from the
// room collaborator.
func NewRoomReference() string {
	return "room-" + uuid.NewString()
}
