package msc

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Mailbox credential keys.
const (
	CredMailboxBucket      = "mailbox_bucket"
	CredMailboxPrefix      = "mailbox_prefix"
	CredAWSRegion          = "aws_region"
	CredAWSAccessKeyID     = "aws_access_key_id"
	CredAWSSecretAccessKey = "aws_secret_access_key"
	CredS3Endpoint         = "s3_endpoint"
)

const maxMessageSize = 10 << 20

// MessageRef identifies one stored message.
type MessageRef struct {
	Key          string
	LastModified time.Time
}

// Mailbox lists and reads raw RFC 5322 messages. MSC status notifications
// are delivered by an inbound mail service that writes each message to a bucket.
type Mailbox interface {
	// List returns up to limit messages under prefix modified after since,
	// oldest first. A zero since lists everything.
	List(ctx context.Context, prefix string, since time.Time, limit int) ([]MessageRef, error)
	// Read returns the raw message stored at key
	Read(ctx context.Context, key string) ([]byte, error)
}

// S3API is the part of the S3 client the mailbox uses.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Mailbox reads messages from an S3 bucket.
type S3Mailbox struct {
	api    S3API
	bucket string
}

// NewS3Mailbox creates a mailbox over bucket.
func NewS3Mailbox(api S3API, bucket string) *S3Mailbox {
	return &S3Mailbox{api: api, bucket: bucket}
}

// List pages through the bucket and returns the oldest limit messages newer
// than since. The since filter runs before the limit.
func (m *S3Mailbox) List(ctx context.Context, prefix string, since time.Time, limit int) ([]MessageRef, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(m.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	refs := make([]MessageRef, 0)
	paginator := s3.NewListObjectsV2Paginator(m.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error(err, "failed to list mailbox")
		}
		for _, obj := range page.Contents {
			ref := MessageRef{Key: aws.ToString(obj.Key)}
			if obj.LastModified != nil {
				ref.LastModified = *obj.LastModified
			}
			if !since.IsZero() && !ref.LastModified.After(since) {
				continue
			}
			refs = append(refs, ref)
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].LastModified.Before(refs[j].LastModified)
	})
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// Read fetches one message body.
func (m *S3Mailbox) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := m.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(err, "failed to read message "+key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxMessageSize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read message "+key)
	}
	return data, nil
}

// openS3Mailbox builds an S3 client from the connection's credentials. Static
// keys are optional; without them the default AWS credential chain applies.
func openS3Mailbox(ctx context.Context, creds models.Credentials, httpClient aws.HTTPClient) (Mailbox, error) {
	bucket := creds.Get(CredMailboxBucket)
	if bucket == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation, "missing credential %q", CredMailboxBucket).
			WithDetail("credential", CredMailboxBucket)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if region := creds.Get(CredAWSRegion); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if id := creds.Get(CredAWSAccessKeyID); id != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, creds.Get(CredAWSSecretAccessKey), "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	endpoint := creds.Get(CredS3Endpoint)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Mailbox(client, bucket), nil
}

func classifyS3Error(err error, msg string) error {
	var noBucket *types.NoSuchBucket
	var noKey *types.NoSuchKey
	switch {
	case errors.As(err, &noBucket):
		return errors.Wrap(err, errors.ErrorTypeConfig, msg+": bucket does not exist")
	case errors.As(err, &noKey):
		return errors.Wrap(err, errors.ErrorTypeNotFound, msg)
	default:
		return errors.Wrap(err, errors.ErrorTypeConnection, msg)
	}
}
