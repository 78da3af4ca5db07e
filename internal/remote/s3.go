package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// md5MetadataKey records the content MD5 on uploaded objects. Multipart
// ETags are not content digests, so the inventory reads this back when
// the ETag is unusable.
const md5MetadataKey = "content-md5"

// S3 stores a binding's files under bucket/prefix in any S3-compatible
// object store. The auth token is "ACCESS:SECRET" with an optional
// "@endpoint" suffix for non-AWS stores (path-style addressing).
type S3 struct {
	bucket   string
	prefix   string
	region   string
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
}

// NewS3 creates an adapter over bucket/prefix. region falls back to
// us-east-1 when empty. The client is built at Authenticate time, once
// the credentials are known.
func NewS3(bucket, prefix, region string) *S3 {
	if region == "" {
		region = "us-east-1"
	}
	return &S3{bucket: bucket, prefix: prefix, region: region}
}

func (r *S3) Kind() string      { return KindS3 }
func (r *S3) SupportsMD5() bool { return true }

func (r *S3) Authenticate(ctx context.Context, token string) error {
	creds, endpoint, found := strings.Cut(token, "@")
	access, secret, ok := strings.Cut(creds, ":")
	if !ok || access == "" || secret == "" {
		return fmt.Errorf("%w: s3 token must be ACCESS:SECRET or ACCESS:SECRET@endpoint", ErrAuth)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(r.region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(access, secret, "")),
	)
	if err != nil {
		return fmt.Errorf("loading s3 config: %w", err)
	}

	r.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if found && endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	r.uploader = manager.NewUploader(r.client)
	r.presign = s3.NewPresignClient(r.client)
	return nil
}

func (r *S3) requireClient() error {
	if r.client == nil {
		return fmt.Errorf("%w: s3 remote not authenticated", ErrAuth)
	}
	return nil
}

// EnsureProject verifies the bucket is reachable, creating it when
// absent. The returned ID is bucket[/prefix].
func (r *S3) EnsureProject(ctx context.Context, _ ProjectMeta, _ bool) (string, error) {
	if err := r.requireClient(); err != nil {
		return "", err
	}
	if _, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &r.bucket}); err != nil {
		if _, err := r.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &r.bucket}); err != nil {
			return "", fmt.Errorf("ensuring s3 bucket %s: %w", r.bucket, err)
		}
	}
	if r.prefix == "" {
		return r.bucket, nil
	}
	return r.bucket + "/" + r.prefix, nil
}

func (r *S3) key(name string) string {
	if r.prefix == "" {
		return name
	}
	return strings.TrimSuffix(r.prefix, "/") + "/" + name
}

func (r *S3) ListFiles(ctx context.Context) ([]File, error) {
	if err := r.requireClient(); err != nil {
		return nil, err
	}
	var out []File
	input := &s3.ListObjectsV2Input{Bucket: &r.bucket}
	if r.prefix != "" {
		input.Prefix = aws.String(strings.TrimSuffix(r.prefix, "/") + "/")
	}
	paginator := s3.NewListObjectsV2Paginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3 objects in %s: %w", r.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := path.Base(key)
			md5sum := strings.Trim(aws.ToString(obj.ETag), `"`)
			if strings.Contains(md5sum, "-") {
				// Multipart ETag; recover the digest from metadata.
				md5sum = r.headMD5(ctx, key)
			}
			out = append(out, File{
				Name: name,
				MD5:  md5sum,
				Size: aws.ToInt64(obj.Size),
				URL:  key,
			})
		}
	}
	return out, nil
}

func (r *S3) headMD5(ctx context.Context, key string) string {
	head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &r.bucket, Key: &key})
	if err != nil {
		return ""
	}
	return head.Metadata[md5MetadataKey]
}

func (r *S3) Upload(ctx context.Context, up Upload, overwrite bool) (File, error) {
	if err := r.requireClient(); err != nil {
		return File{}, err
	}
	key := r.key(up.Name)

	if !overwrite {
		if _, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &r.bucket, Key: &key}); err == nil {
			return File{}, fmt.Errorf("%w: s3://%s/%s", ErrAlreadyExists, r.bucket, key)
		}
	}

	src, err := os.Open(up.Path)
	if err != nil {
		return File{}, fmt.Errorf("opening %s: %w", up.Path, err)
	}
	defer src.Close()

	var body io.Reader = src
	if up.Progress != nil {
		body = &progressReader{r: src, fn: up.Progress}
	}

	_, err = r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   &r.bucket,
		Key:      &key,
		Body:     body,
		Metadata: map[string]string{md5MetadataKey: up.MD5},
	})
	if err != nil {
		return File{}, fmt.Errorf("uploading %s to s3://%s/%s: %w", up.Name, r.bucket, key, err)
	}
	return File{Name: up.Name, MD5: up.MD5, Size: up.Size, URL: key}, nil
}

// DownloadURL presigns a GET for the object; File.URL carries the key.
func (r *S3) DownloadURL(f File) (string, error) {
	if err := r.requireClient(); err != nil {
		return "", err
	}
	key := f.URL
	if key == "" {
		key = r.key(f.Name)
	}
	req, err := r.presign.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &r.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(6*time.Hour))
	if err != nil {
		return "", fmt.Errorf("presigning s3://%s/%s: %w", r.bucket, key, err)
	}
	return req.URL, nil
}

var _ Remote = (*S3)(nil)
