package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"menu-hand/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client erstellt einen S3-Client für den Roh-Kopie-Bucket.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.RawCopyS3URL,
				SigningRegion:     cfg.RawCopyS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.RawCopyS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.RawCopyS3Key, cfg.RawCopyS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// RawCopySink archiviert unveränderte Feed-Antworten im S3. Jede Antwort
// bekommt einen zeitgestempelten Schlüssel; alte Kopien werden nie
// überschrieben.
type RawCopySink struct {
	client *s3.Client
	bucket string
}

// NewRawCopySink erstellt einen Sink über dem konfigurierten Bucket.
func NewRawCopySink(client *s3.Client, bucket string) *RawCopySink {
	return &RawCopySink{client: client, bucket: bucket}
}

// Store legt eine Feed-Antwort unter rawcopy/<feed>/<timestamp>-<lang>.xml ab.
func (s *RawCopySink) Store(feedName, lang string, data []byte) error {
	key := fmt.Sprintf("rawcopy/%s/%s-%s.xml",
		feedName, time.Now().UTC().Format("2006-01-02T15-04-05Z"), lang)
	_, err := s.client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}
