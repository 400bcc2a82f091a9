package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// UploadURLExpiry is how long a presigned upload URL stays valid.
const UploadURLExpiry = 15 * time.Minute

// S3Config describes an S3-compatible bucket (MinIO in development).
type S3Config struct {
	User     string
	Password string
	Bucket   string
	Region   string
	Endpoint string
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploadPresigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// S3Store keeps profile assets as objects; refs are object keys.
type S3Store struct {
	bucket    string
	client    objectDeleter
	presigner uploadPresigner
	now       func() time.Time
}

func NewS3Store(ctx context.Context, c S3Config) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.Endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		bucket:    c.Bucket,
		client:    client,
		presigner: s3.NewPresignClient(client),
		now:       time.Now,
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil
		}
		return fmt.Errorf("delete profile object %s: %w", ref, err)
	}
	return nil
}

// PresignUpload allocates a fresh object key and returns a presigned PUT URL
// for it.
func (s *S3Store) PresignUpload(ctx context.Context) (string, string, error) {
	key := s.newKey()

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(UploadURLExpiry))
	if err != nil {
		return "", "", fmt.Errorf("presign profile upload: %w", err)
	}

	return key, req.URL, nil
}

func (s *S3Store) newKey() string {
	d := s.now()
	return fmt.Sprintf("profiles/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}
