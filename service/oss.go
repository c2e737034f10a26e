package service

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"AIVideoCreator-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// OSS 对象存储发布器：最终成片和可分享的媒体产物上传到 MinIO，
// 返回带签名的访问链接。
type OSS struct {
	client *minio.Client
	bucket string
}

func NewOSS(cfg *config.Config) (*OSS, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化失败: %w", err)
	}
	return &OSS{client: client, bucket: cfg.MinIO.Bucket}, nil
}

func contentTypeOf(name string) string {
	switch filepath.Ext(name) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// PublishFile 上传本地文件并返回 72 小时有效的签名 URL
func (o *OSS) PublishFile(ctx context.Context, localPath, objectName string) (string, error) {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return "", fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("创建 Bucket 失败: %w", err)
		}
	}

	_, err = o.client.FPutObject(ctx, o.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentTypeOf(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("上传 MinIO 失败: %w", err)
	}

	presigned, err := o.client.PresignedGetObject(ctx, o.bucket, objectName, 72*time.Hour, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	return presigned.String(), nil
}
