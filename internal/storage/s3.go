package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// IsS3Path reports whether ref is an s3://bucket/key reference.
func IsS3Path(ref string) bool { return strings.HasPrefix(ref, "s3://") }

func splitS3Path(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

// DownloadToTemp fetches an s3://bucket/key object into a temp file and
// returns its path. The caller removes the file when done.
func DownloadToTemp(ctx context.Context, ref string) (string, error) {
	bucket, key, err := splitS3Path(ref)
	if err != nil {
		return "", err
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	downloader := manager.NewDownloader(s3.NewFromConfig(cfg))

	// go-fitz and pdfcpu both want a real file on disk
	f, err := os.CreateTemp("", "pdf2md-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()

	n, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", ref, err)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded input from S3")
	return f.Name(), nil
}

// UploadFile stores a local file at an s3://bucket/key destination. Used to
// publish the finished Markdown next to the source document.
func UploadFile(ctx context.Context, localPath, ref string) error {
	bucket, key, err := splitS3Path(ref)
	if err != nil {
		return err
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	uploader := manager.NewUploader(s3.NewFromConfig(cfg))

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/markdown"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", ref, err)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Str("file", localPath).Msg("uploaded result to S3")
	return nil
}
