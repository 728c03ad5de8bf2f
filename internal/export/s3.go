// Package export uploads assembled books to S3-compatible object storage
// (MinIO in development) so they can be backed up or shared outside the
// group.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"bookfeed/internal/epub"
	"bookfeed/internal/logging"
)

// Options carries the object storage connection settings.
type Options struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Bucket       string
}

// objectAPI is the slice of the S3 client the exporter uses; tests inject a
// fake.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Exporter struct {
	opts   Options
	log    logging.Logger
	client objectAPI
}

func New(opts Options, log logging.Logger) (*Exporter, error) {
	if log == nil {
		log = logging.NewNoop()
	}
	e := &Exporter{opts: opts, log: log.With("component", "export")}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}
	e.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return e, nil
}

// StorageKey places each exported book under its group and whole-file
// digest, keeping re-exports idempotent.
func StorageKey(groupID string, fi *epub.FileInfo) string {
	return fmt.Sprintf("groups/%s/%s/%s", groupID, fi.SHA256, fi.Name)
}

// ExportBook uploads the assembled file and returns its storage key.
func (e *Exporter) ExportBook(ctx context.Context, groupID string, fi *epub.FileInfo, book []byte) (string, error) {
	key := StorageKey(groupID, fi)
	start := time.Now()

	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(book),
		ContentType: aws.String(fi.MediaType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	e.log.Info(ctx, "book exported",
		"group", groupID, "key", key, "bytes", len(book), "took", time.Since(start))
	return key, nil
}
