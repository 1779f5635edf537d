package repository

import (
	"context"
	"fmt"
	"os"

	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type awsRepository struct {
	client *s3.Client
}

func NewAwsRepository(awsClient *s3.Client) jobs.AWSRepository {
	return &awsRepository{
		client: awsClient,
	}
}

func (a *awsRepository) PutObject(ctx context.Context, input models.ArtifactObject) (*s3.PutObjectOutput, error) {
	file, err := os.Open(input.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", input.LocalPath, err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", input.LocalPath, err)
	}
	size := stat.Size()

	res, err := a.client.PutObject(
		ctx,
		&s3.PutObjectInput{
			Bucket:        &input.Bucket,
			Key:           &input.Key,
			ContentType:   &input.ContentType,
			ContentLength: &size,
			Body:          file,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file : %w", err)
	}
	return res, nil
}

func (a *awsRepository) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: &bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects : %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}
