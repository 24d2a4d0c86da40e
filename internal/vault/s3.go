package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// S3Vault stores payloads as objects under <prefix><uid> in one bucket.
type S3Vault struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ bm.Vault = (*S3Vault)(nil)

// NewS3Vault builds a client from cfg. Static credentials are used when both
// key fields are set; otherwise the default AWS credential chain applies.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3 vault: bucket name is required")
	}

	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 vault: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
		o.DisableLogOutputChecksumValidationSkipped = true
	})

	return &S3Vault{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
	}, nil
}

func (v *S3Vault) key(uid string) string {
	return v.prefix + uid
}

func (v *S3Vault) WritePayload(ctx context.Context, r io.Reader, size int64) (string, error) {
	uid := bm.NewContentUID()
	counted := &countingReader{r: r}

	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(v.key(uid)),
		Body:        counted,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", wrapS3Error("put", uid, err)
	}
	if counted.n != size {
		_ = v.DeletePayload(context.WithoutCancel(ctx), uid)
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return uid, nil
}

func (v *S3Vault) ReadPayload(ctx context.Context, uid string, w io.Writer) error {
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(uid)),
	})
	if err != nil {
		return wrapS3Error("get", uid, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading payload %s: %w", uid, err)
	}
	return nil
}

func (v *S3Vault) DeletePayload(ctx context.Context, uid string) error {
	_, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(uid)),
	})
	if err != nil {
		if werr := wrapS3Error("delete", uid, err); !errors.Is(werr, bm.ErrNotFound) {
			return werr
		}
	}
	return nil
}

func (v *S3Vault) ListPayloads(ctx context.Context, prefix string) ([]string, error) {
	var uids []string
	paginator := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(v.key(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapS3Error("list", prefix, err)
		}
		for _, obj := range page.Contents {
			uids = append(uids, strings.TrimPrefix(aws.ToString(obj.Key), v.prefix))
		}
	}
	sort.Strings(uids)
	return uids, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	_, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)})
	if err != nil {
		return wrapS3Error("head bucket", v.bucket, err)
	}
	return nil
}

// wrapS3Error maps missing objects to bm.ErrNotFound and transport or
// throttling failures to bm.ErrStoreUnavailable.
func wrapS3Error(op, uid string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return bm.NewStoreError("s3 "+op+" "+uid, bm.ErrNotFound, err)
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return bm.NewStoreError("s3 "+op+" "+uid, bm.ErrNotFound, err)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return bm.NewStoreError("s3 "+op+" "+uid, bm.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return bm.NewStoreError("s3 "+op+" "+uid, bm.ErrStoreUnavailable, fmt.Errorf("bucket missing: %w", err))
		case "SlowDown", "Throttling", "RequestThrottled":
			return bm.NewStoreError("s3 "+op+" "+uid, bm.ErrConflict, err)
		}
	}
	return bm.NewStoreError("s3 "+op+" "+uid, bm.ErrStoreUnavailable, err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
