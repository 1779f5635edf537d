package jobs

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type AWSRepository interface {
	PutObject(ctx context.Context, input models.ArtifactObject) (*s3.PutObjectOutput, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}
