// Package s3 lists objects in a bucket page by page and resolves them to
// presigned GET URLs the download engine can fetch.
package s3

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/paging"
	"github.com/tanq16/vidgrab/internal/resolve"
)

const DefaultPresignExpiry = time.Hour

type Options struct {
	Profile   string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores, implies path-style addressing
	AccessKey string
	SecretKey string
	Expiry    time.Duration
	HTTP      *http.Client
}

type Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	expiry  time.Duration
}

type Object struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
}

func (o Object) Name() string {
	return path.Base(o.Key)
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryMode(aws.RetryModeAdaptive),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	if opts.HTTP != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(opts.HTTP))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &Client{
		client:  client,
		presign: s3.NewPresignClient(client),
		expiry:  expiry,
	}, nil
}

// ParseURI splits s3://bucket/key into its parts. The key may be empty.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %s", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", uri)
	}
	return bucket, key, nil
}

// Bucket returns a paging.Fetcher that lists objects of bucket, using the
// criterion as key prefix.
func (c *Client) Bucket(name string) *Bucket {
	return &Bucket{client: c.client, name: name}
}

type Bucket struct {
	client *s3.Client
	name   string
}

func (b *Bucket) Fetch(ctx context.Context, q paging.Query) (paging.Page[Object], error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.name),
		MaxKeys: aws.Int32(int32(q.Size)),
	}
	if q.Criteria != "" {
		input.Prefix = aws.String(q.Criteria)
	}
	if q.Token != "" {
		input.ContinuationToken = aws.String(q.Token)
	}
	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return paging.Page[Object]{}, fmt.Errorf("error listing objects: %v", err)
	}
	var page paging.Page[Object]
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		size := aws.ToInt64(obj.Size)
		// zero-byte keys ending in / are folder markers
		if size == 0 && strings.HasSuffix(*obj.Key, "/") {
			continue
		}
		page.Items = append(page.Items, Object{
			Bucket:       b.name,
			Key:          *obj.Key,
			Size:         size,
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	log.Debug().Str("op", "s3/s3").Msgf("listed %d objects in %s/%s", len(page.Items), b.name, q.Criteria)
	return page, nil
}

// Stat looks up a single object.
func (c *Client) Stat(ctx context.Context, bucket, key string) (Object, error) {
	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, fmt.Errorf("error accessing S3 object: %v", err)
	}
	return Object{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(head.ContentLength),
		LastModified: aws.ToTime(head.LastModified),
	}, nil
}

// Resolve presigns a GET for s3://bucket/key and describes it as a single download.
func (c *Client) Resolve(ctx context.Context, ref string) ([]resolve.Descriptor, error) {
	bucket, key, err := ParseURI(ref)
	if err != nil {
		return nil, err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, fmt.Errorf("%s is not an object key", ref)
	}
	obj, err := c.Stat(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.expiry))
	if err != nil {
		return nil, fmt.Errorf("error presigning object: %v", err)
	}
	name := obj.Name()
	ext := path.Ext(name)
	return []resolve.Descriptor{{
		URL:        req.URL,
		Title:      strings.TrimSuffix(name, ext),
		Format:     strings.TrimPrefix(ext, "."),
		Resolution: "original",
		Size:       obj.Size,
	}}, nil
}
