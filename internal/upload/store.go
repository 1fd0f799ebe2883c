package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// HTTPStore PUTs objects to a storage zone that authenticates with an
// AccessKey header and may answer with {"success": false}.
type HTTPStore struct {
	BaseURL   string
	AccessKey string
	Client    *http.Client
}

// NewHTTPStore constructs an HTTPStore with a bounded client timeout.
func NewHTTPStore(baseURL, accessKey string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPStore{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		AccessKey: accessKey,
		Client:    &http.Client{Timeout: timeout},
	}
}

// Put uploads data under object. A non-2xx status or a JSON body reporting
// success=false is an error.
func (s *HTTPStore) Put(ctx context.Context, object, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.BaseURL+"/"+object, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("AccessKey", s.AccessKey)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", object, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("put %s: storage returned %d: %s", object, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ack struct {
		Success *bool `json:"success"`
	}
	if len(body) > 0 && json.Unmarshal(body, &ack) == nil && ack.Success != nil && !*ack.Success {
		return fmt.Errorf("put %s: storage reported failure: %s", object, strings.TrimSpace(string(body)))
	}
	return nil
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Store writes objects to an S3-compatible bucket using path-style addressing.
type S3Store struct {
	client s3iface.S3API
	bucket string
}

// NewS3Store builds the SDK session from static credentials.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return &S3Store{client: s3.New(sess), bucket: cfg.Bucket}, nil
}

// Put writes data to object in the configured bucket.
func (s *S3Store) Put(ctx context.Context, object, contentType string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(object),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", object, err)
	}
	return nil
}
