package imagestore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hitoshi/carmarket/internal/model"
)

// S3API はS3Storeが使用するS3クライアントのメソッド。
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Config はS3互換ストレージの接続設定。
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // MinIO等を使う場合に指定
	AccessKey string
	SecretKey string
	PublicURL string // 配信用のベースURL
}

// NewS3Client は設定からS3クライアントを生成する。
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// S3Store はS3互換オブジェクトストレージに画像を保存する。
type S3Store struct {
	client    S3API
	bucket    string
	publicURL string
}

// NewS3Store はS3Storeを生成する。
func NewS3Store(client S3API, bucket, publicURL string) *S3Store {
	return &S3Store{client: client, bucket: bucket, publicURL: publicURL}
}

// CreateDirectory はオブジェクトストレージにディレクトリが存在しないため何もしない。
func (s *S3Store) CreateDirectory(ctx context.Context, dir string) error {
	_, err := cleanDir(dir)
	return err
}

// RemoveDirectory は"<dir>/"で始まるオブジェクトをすべて削除する。
func (s *S3Store) RemoveDirectory(ctx context.Context, dir string) error {
	dir, err := cleanDir(dir)
	if err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", dir, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects under %s: %w", dir, err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("failed to delete %d objects under %s: %s", len(out.Errors), dir, aws.ToString(out.Errors[0].Message))
		}
	}
	return nil
}

// SaveImages は複数の画像をオブジェクトとして保存する。
func (s *S3Store) SaveImages(ctx context.Context, files []Upload, dir string) ([]model.Image, error) {
	return saveAll(ctx, files, dir, s.put)
}

// Save は画像を1件保存して参照名（オブジェクトキー）を返す。
func (s *S3Store) Save(ctx context.Context, file Upload, dir string) (string, error) {
	images, err := s.SaveImages(ctx, []Upload{file}, dir)
	if err != nil {
		return "", err
	}
	return images[0].Name, nil
}

func (s *S3Store) put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// URL はオブジェクトキーを配信URLに変換する。
func (s *S3Store) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.publicURL + "/" + ref
}

// compile-time interface check
var _ Store = (*S3Store)(nil)
