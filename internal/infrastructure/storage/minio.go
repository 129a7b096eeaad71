package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/johnquangdev/meeting-minutes/pkg/config"
)

// MinIOClient wraps MinIO operations
type MinIOClient struct {
	client    *minio.Client
	bucket    string
	publicURL string // Public URL for generating accessible URLs (e.g., https://minio.example.com)
	expiry    time.Duration
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(cfg *config.StorageConfig) (*MinIOClient, error) {
	// Initialize MinIO client
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 || expiry > 7*24*time.Hour {
		expiry = 24 * time.Hour
	}

	client := &MinIOClient{
		client:    minioClient,
		bucket:    cfg.BucketName,
		publicURL: cfg.PublicURL,
		expiry:    expiry,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}

	return client, nil
}

// ensureBucket creates the bucket when missing. Objects stay private; external
// services and downloads get presigned URLs.
func (m *MinIOClient) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// UploadFile uploads a file to MinIO
func (m *MinIOClient) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// DownloadFile copies an object to a local file
func (m *MinIOClient) DownloadFile(ctx context.Context, objectName string, localPath string) error {
	if err := m.client.FGetObject(ctx, m.bucket, objectName, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	return nil
}

// Exists reports whether an object is present
func (m *MinIOClient) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, objectName, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object: %w", err)
}

// GetFileURL gets a presigned URL for accessing a file
func (m *MinIOClient) GetFileURL(ctx context.Context, objectName string) (string, error) {
	return m.PresignedURL(ctx, objectName, "")
}

// PresignedURL presigns a GET for objectName. A non-empty downloadName sets the
// Content-Disposition filename of the response.
func (m *MinIOClient) PresignedURL(ctx context.Context, objectName string, downloadName string) (string, error) {
	var params url.Values
	if downloadName != "" {
		params = url.Values{}
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}

	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, m.expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	// Behind a reverse proxy the signed path is served from the public endpoint
	if m.publicURL != "" {
		return rewriteHost(u, m.publicURL), nil
	}
	return u.String(), nil
}

// rewriteHost replaces scheme and host of a presigned URL with publicURL, keeping
// the signed path and query
func rewriteHost(u *url.URL, publicURL string) string {
	return publicURL + u.RequestURI()
}

// ListFiles lists all files under prefix
func (m *MinIOClient) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	var files []string

	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		files = append(files, object.Key)
	}

	return files, nil
}

// GetBucketInfo returns information about the bucket and connection
func (m *MinIOClient) GetBucketInfo(ctx context.Context) (map[string]interface{}, error) {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	info := map[string]interface{}{
		"bucket":        m.bucket,
		"bucket_exists": exists,
		"endpoint":      m.client.EndpointURL().String(),
	}

	if exists {
		files, err := m.ListFiles(ctx, "documents/")
		if err != nil {
			info["error"] = err.Error()
		} else {
			info["documents"] = len(files)
		}
	}

	return info, nil
}
