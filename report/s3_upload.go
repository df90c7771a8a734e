package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader copies exported result files into an S3 bucket so runs started
// from throwaway machines don't lose their data.
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
}

func NewS3Uploader(cfg aws.Config, bucket string) *S3Uploader {
	return &S3Uploader{
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
		bucket:   bucket,
	}
}

func (u *S3Uploader) UploadFile(ctx context.Context, localPath, keyPrefix string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", localPath, err)
	}
	defer f.Close()

	key := path.Join(keyPrefix, path.Base(localPath))
	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &u.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, u.bucket, key, err)
	}
	slog.Info("uploaded result file", slog.String("bucket", u.bucket), slog.String("key", key))
	return nil
}

// UploadDir uploads every regular file directly under dir. Missing or empty
// directories are not an error; there is simply nothing to upload.
func (u *S3Uploader) UploadDir(ctx context.Context, dir, keyPrefix string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		err = u.UploadFile(ctx, path.Join(dir, e.Name()), keyPrefix)
		if err != nil {
			return err
		}
	}
	return nil
}
