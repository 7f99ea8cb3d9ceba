// Package reportstore persists reported differences as newline delimited JSON
// part files on local disk, S3 or GCS.
package reportstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Store writes one part file of a table's report.
type Store interface {
	// CreateFromReader writes r as part number part of the table's report and
	// returns where it was written.
	CreateFromReader(ctx context.Context, r io.Reader, table string, part int) (string, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// partKey is the object key of a part relative to the store root.
func partKey(runDir string, table string, part int) string {
	return path.Join(runDir, unsafeChars.ReplaceAllString(table, "_"), fmt.Sprintf("part_%08d.ndjson", part))
}

type localStore struct {
	logger   zerolog.Logger
	basePath string
	runDir   string
}

// NewLocalStore writes under basePath/runDir.
func NewLocalStore(logger zerolog.Logger, basePath string, runDir string) (*localStore, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "error creating report directory %s", basePath)
	}
	return &localStore{logger: logger, basePath: basePath, runDir: runDir}, nil
}

func (l *localStore) CreateFromReader(
	ctx context.Context, r io.Reader, table string, part int,
) (string, error) {
	p := path.Join(l.basePath, partKey(l.runDir, table, part))
	if err := os.MkdirAll(path.Dir(p), os.ModePerm); err != nil {
		return "", err
	}
	logger := l.logger.With().Str("path", p).Logger()
	logger.Debug().Msgf("creating file")
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	logger.Debug().Msgf("wrote file")
	return p, nil
}

type s3Store struct {
	logger  zerolog.Logger
	bucket  string
	runDir  string
	session *session.Session
}

func NewS3Store(logger zerolog.Logger, session *session.Session, bucket string, runDir string) *s3Store {
	return &s3Store{
		bucket:  bucket,
		runDir:  runDir,
		session: session,
		logger:  logger,
	}
}

func (s *s3Store) CreateFromReader(
	ctx context.Context, r io.Reader, table string, part int,
) (string, error) {
	key := partKey(s.runDir, table, part)
	s.logger.Debug().Str("file", key).Msgf("creating new file")
	if _, err := s3manager.NewUploader(s.session).UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}); err != nil {
		return "", err
	}
	s.logger.Debug().Str("file", key).Msgf("s3 file creation complete")
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

type gcpStore struct {
	logger zerolog.Logger
	bucket string
	runDir string
	client *storage.Client
}

func NewGCPStore(logger zerolog.Logger, client *storage.Client, bucket string, runDir string) *gcpStore {
	return &gcpStore{
		bucket: bucket,
		runDir: runDir,
		client: client,
		logger: logger,
	}
}

func (s *gcpStore) CreateFromReader(
	ctx context.Context, r io.Reader, table string, part int,
) (string, error) {
	key := partKey(s.runDir, table, part)
	s.logger.Debug().Str("file", key).Msgf("creating new file")
	wc := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(wc, r); err != nil {
		_ = wc.Close()
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", err
	}
	s.logger.Debug().Str("file", key).Msgf("gcp file creation complete")
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}
