// services/spaces.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SpacesService stores quest cover images in a DigitalOcean Space so the
// announcement embed can reference a stable URL after the original
// attachment expires.
type SpacesService struct {
	client    *s3.Client
	bucket    string
	region    string
	ImageRoot string
}

func NewSpacesService(spacesKey, spacesSecret, region, bucket, imageRoot string) *SpacesService {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to load Spaces config: %v", err))
	}

	client := s3.NewFromConfig(cfg)

	return &SpacesService{
		client:    client,
		bucket:    bucket,
		region:    region,
		ImageRoot: strings.TrimPrefix(imageRoot, "/"),
	}
}

// UploadQuestImage stores a quest cover under <root>/<quest id>.jpg and
// returns the public URL.
func (s *SpacesService) UploadQuestImage(ctx context.Context, questID string, data []byte, contentType string) (string, error) {
	key := s.questImageKey(questID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		ACL:         "public-read",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload quest image %s: %w", key, err)
	}
	return s.QuestImageURL(questID), nil
}

// DeleteQuestImage removes a stored quest cover. Missing objects are not an
// error.
func (s *SpacesService) DeleteQuestImage(ctx context.Context, questID string) error {
	key := s.questImageKey(questID)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete quest image %s: %w", key, err)
	}
	return nil
}

func (s *SpacesService) QuestImageURL(questID string) string {
	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s", s.bucket, s.region, s.questImageKey(questID))
}

func (s *SpacesService) questImageKey(questID string) string {
	return fmt.Sprintf("%s/%s.jpg", s.ImageRoot, questID)
}

func (s *SpacesService) GetBucket() string {
	return s.bucket
}

func (s *SpacesService) GetRegion() string {
	return s.region
}
