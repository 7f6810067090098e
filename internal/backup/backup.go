// Package backup snapshots the sqlite database with VACUUM INTO and
// uploads a gzipped copy to S3-compatible storage.
package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"wheelhouse/internal/database"
)

// Service creates and uploads database backups
type Service struct {
	db       *database.DB
	dataDir  string
	bucket   string
	prefix   string
	uploader *manager.Uploader
	log      zerolog.Logger
}

// NewService creates a backup service. An empty bucket disables
// uploads; Run then fails loudly rather than pretending to back up.
// AWS credentials and region come from the default chain (env,
// ~/.aws, instance profile).
func NewService(ctx context.Context, db *database.DB, dataDir, bucket, prefix string, log zerolog.Logger) (*Service, error) {
	svc := &Service{
		db:      db,
		dataDir: dataDir,
		bucket:  bucket,
		prefix:  prefix,
		log:     log.With().Str("service", "backup").Logger(),
	}

	if bucket == "" {
		return svc, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	svc.uploader = manager.NewUploader(client)

	return svc, nil
}

// Enabled reports whether uploads are configured
func (s *Service) Enabled() bool {
	return s.uploader != nil
}

// Run takes a consistent database copy and uploads it. VACUUM INTO
// produces a clean single-file snapshot even with WAL active.
func (s *Service) Run(ctx context.Context) error {
	if !s.Enabled() {
		return fmt.Errorf("backup bucket not configured")
	}

	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshotPath := filepath.Join(stagingDir, "wheelhouse.db")
	if _, err := s.db.Exec("VACUUM INTO ?", snapshotPath); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}

	archivePath := snapshotPath + ".gz"
	size, err := gzipFile(snapshotPath, archivePath)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	key := fmt.Sprintf("wheelhouse-backup-%s.db.gz", time.Now().UTC().Format("2006-01-02-150405"))
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   archive,
	})
	if err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Int64("size_bytes", size).
		Dur("duration", time.Since(startTime)).
		Msg("Backup uploaded")

	return nil
}

func gzipFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}
