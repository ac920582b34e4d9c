// Package cos implements eventstream.FileStore on Tencent Cloud Object
// Storage, grounded on the same cos-go-sdk-v5 client construction and
// Object.Put/Get/Bucket.Get usage the teacher's artifact/tcos service
// uses, the object-storage-backed persistence collaborator called for in
// spec.md §1 ("persistence backends... beyond the contract they satisfy").
package cos

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/agentrt/agentrt/errs"
)

// Store is a FileStore backed by one COS bucket.
type Store struct {
	client *cos.Client
}

// Option configures a new Store.
type Option func(*options)

type options struct {
	secretID, secretKey string
	timeout             time.Duration
	httpClient          *http.Client
}

// WithSecretID overrides the TCOS_SECRETID environment variable.
func WithSecretID(id string) Option { return func(o *options) { o.secretID = id } }

// WithSecretKey overrides the TCOS_SECRETKEY environment variable.
func WithSecretKey(key string) Option { return func(o *options) { o.secretKey = key } }

// WithTimeout overrides the default 60s HTTP client timeout.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

const defaultTimeout = 60 * time.Second

// New constructs a Store against bucketURL (e.g.
// "https://bucket.cos.region.myqcloud.com"), authenticating from
// TCOS_SECRETID / TCOS_SECRETKEY unless overridden.
func New(bucketURL string, opts ...Option) (*Store, error) {
	o := &options{
		timeout:   defaultTimeout,
		secretID:  os.Getenv("TCOS_SECRETID"),
		secretKey: os.Getenv("TCOS_SECRETKEY"),
	}
	for _, opt := range opts {
		opt(o)
	}
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, errs.NewConfigurationError("parse cos bucket url", err)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: o.timeout,
			Transport: &cos.AuthorizationTransport{
				SecretID:  o.secretID,
				SecretKey: o.secretKey,
			},
		}
	}
	return &Store{client: cos.NewClient(&cos.BaseURL{BucketURL: u}, httpClient)}, nil
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), nil)
	if err != nil {
		return errs.NewStorageError("put "+key, err)
	}
	return nil
}

// Get downloads the object at key, or errs.NotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, errs.NewNotFound(key)
		}
		return nil, errs.NewStorageError("get "+key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewStorageError("read body for "+key, err)
	}
	return data, nil
}

// List returns every object key with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	marker := ""
	for {
		result, _, err := s.client.Bucket.Get(ctx, &cos.BucketGetOptions{
			Prefix: prefix,
			Marker: marker,
		})
		if err != nil {
			if cos.IsNotFoundError(err) {
				return keys, nil
			}
			return nil, errs.NewStorageError("list "+prefix, err)
		}
		for _, obj := range result.Contents {
			keys = append(keys, obj.Key)
		}
		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}
	return keys, nil
}
