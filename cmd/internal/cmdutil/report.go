package cmdutil

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/reportstore"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

type reportConfig struct {
	localPath string
	s3Bucket  string
	gcpBucket string
	flushRows int
}

var reportCfg = reportConfig{
	flushRows: reportstore.DefaultFlushRows,
}

func RegisterReportFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&reportCfg.localPath,
		"report-local-path",
		"",
		"if set, directory to write differences to as newline delimited JSON",
	)
	cmd.PersistentFlags().StringVar(
		&reportCfg.s3Bucket,
		"report-s3-bucket",
		"",
		"if set, S3 bucket to write differences to",
	)
	cmd.PersistentFlags().StringVar(
		&reportCfg.gcpBucket,
		"report-gcp-bucket",
		"",
		"if set, GCS bucket to write differences to",
	)
	cmd.PersistentFlags().IntVar(
		&reportCfg.flushRows,
		"report-flush-rows",
		reportCfg.flushRows,
		"number of differences per table written to each report file",
	)
}

// ReportStore returns the configured store, or nil if differences are only
// logged. Files are grouped under a directory per invocation.
func ReportStore(ctx context.Context, logger zerolog.Logger) (reportstore.Store, error) {
	runDir := time.Now().UTC().Format("20060102T150405Z")
	switch {
	case reportCfg.gcpBucket != "":
		creds, err := google.FindDefaultCredentials(ctx, storage.ScopeReadWrite)
		if err != nil {
			return nil, err
		}
		gcpClient, err := storage.NewClient(ctx, option.WithCredentials(creds))
		if err != nil {
			return nil, err
		}
		return reportstore.NewGCPStore(logger, gcpClient, reportCfg.gcpBucket, runDir), nil
	case reportCfg.s3Bucket != "":
		sess, err := session.NewSession()
		if err != nil {
			return nil, err
		}
		if _, err := sess.Config.Credentials.Get(); err != nil {
			return nil, errors.Wrap(err, "error loading aws credentials")
		}
		return reportstore.NewS3Store(logger, sess, reportCfg.s3Bucket, runDir), nil
	case reportCfg.localPath != "":
		return reportstore.NewLocalStore(logger, reportCfg.localPath, runDir)
	}
	return nil, nil
}

func ReportFlushRows() int {
	return reportCfg.flushRows
}
