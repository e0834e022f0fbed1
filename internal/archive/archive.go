// Package archive stores raw message sources in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/email"
)

// Archiver keeps a copy of a raw message.
type Archiver interface {
	Archive(ctx context.Context, raw *email.RawMessage) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Archive(context.Context, *email.RawMessage) error { return nil }

type putter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads sources as {account}/{folder}/{uid}.eml.
type S3Archiver struct {
	client putter
	bucket string
}

// New returns an S3Archiver when a bucket is configured, Nop otherwise.
func New(cfg config.ArchiveConfig) (Archiver, error) {
	if cfg.Bucket == "" {
		return Nop{}, nil
	}

	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.StaticProvider{
				Value: credentials.Value{
					AccessKeyID:     cfg.AccessKey,
					SecretAccessKey: cfg.SecretKey,
				},
			},
		})
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return &S3Archiver{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

// ObjectKey returns the object key for a message.
func ObjectKey(accountID, folder string, uid uint32) string {
	return fmt.Sprintf("%s/%s/%d.eml", accountID, folder, uid)
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, raw *email.RawMessage) error {
	key := ObjectKey(raw.AccountID, raw.Folder, raw.UID)
	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw.Source),
		ContentType: aws.String("message/rfc822"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
