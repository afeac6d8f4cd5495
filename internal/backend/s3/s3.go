// Package s3 implements a backend on an S3 compatible object store.
package s3

import (
	"context"
	"hash"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

// Backend stores data on an S3 endpoint.
type Backend struct {
	client *minio.Client
	cfg    Config
}

// make sure that *Backend implements backend.Backend
var _ backend.Backend = &Backend{}

func open(cfg Config, rt http.RoundTripper) (*Backend, error) {
	debug.Log("open s3 backend at %v/%v", cfg.Endpoint, cfg.Bucket)

	// Chains all credential types, in the following order:
	// 	- Static credentials provided by user
	//	- AWS env vars (i.e. AWS_ACCESS_KEY_ID)
	//  - Minio env vars (i.e. MINIO_ACCESS_KEY)
	//  - AWS creds file (i.e. AWS_SHARED_CREDENTIALS_FILE or ~/.aws/credentials)
	//  - Minio creds file (i.e. MINIO_SHARED_CREDENTIALS_FILE or ~/.mc/config.json)
	//  - IAM profile based credentials (only valid inside configured ec2 instances)
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.KeyID,
				SecretAccessKey: cfg.Secret,
			},
		},
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.FileMinioClient{},
		&credentials.IAM{
			Client: &http.Client{
				Transport: http.DefaultTransport,
			},
		},
	})

	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.UseHTTP,
		Region:    cfg.Region,
		Transport: rt,
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, errors.Wrap(err, "minio.New")
	}

	return &Backend{client: client, cfg: cfg}, nil
}

// Open opens the S3 backend as specified by config.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Backend, error) {
	return open(cfg, rt)
}

// Create opens the S3 backend, but doesn't do anything else like creating
// buckets, which requires credentials most deployments don't hand out.
func Create(_ context.Context, cfg Config, rt http.RoundTripper) (*Backend, error) {
	return open(cfg, rt)
}

func (be *Backend) objectName(h backend.Handle) string {
	if h.Type == backend.ConfigFile {
		return path.Join(be.cfg.Prefix, "config")
	}

	return path.Join(be.cfg.Prefix, string(h.Type), h.Name)
}

// Hasher may return a hash function for calculating a content hash for the
// backend. The S3 protocol verifies the content hash itself.
func (be *Backend) Hasher() hash.Hash {
	return nil
}

// IsNotExist returns true if the error is caused by a non-existing object.
func (be *Backend) IsNotExist(err error) bool {
	return minio.ToErrorResponse(errors.Unwrap(err)).Code == "NoSuchKey" ||
		minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Save stores data in the backend at the handle.
func (be *Backend) Save(ctx context.Context, h backend.Handle, rd backend.RewindReader) error {
	debug.Log("Save %v", h)
	if err := h.Valid(); err != nil {
		return err
	}

	opts := minio.PutObjectOptions{
		StorageClass: be.cfg.StorageClass,
		ContentType:  "application/octet-stream",
		// explicitly disable multipart uploads, the objects written by the
		// store are small enough for single-part uploads
		DisableMultipart: true,
	}

	info, err := be.client.PutObject(ctx, be.cfg.Bucket, be.objectName(h), io.LimitReader(rd, rd.Length()), rd.Length(), opts)
	if err != nil {
		return errors.Wrap(err, "client.PutObject")
	}
	// sanity check
	if info.Size != rd.Length() {
		return errors.Errorf("wrote %d bytes instead of the expected %d bytes", info.Size, rd.Length())
	}

	return nil
}

// Load runs fn with a reader that yields the contents of the file at h at the
// given offset.
func (be *Backend) Load(ctx context.Context, h backend.Handle, length int, offset int64, fn func(rd io.Reader) error) error {
	return backend.DefaultLoad(ctx, h, length, offset, be.openReader, fn)
}

func (be *Backend) openReader(ctx context.Context, h backend.Handle, length int, offset int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}

	var err error
	if length > 0 {
		err = opts.SetRange(offset, offset+int64(length)-1)
	} else if offset > 0 {
		err = opts.SetRange(offset, 0)
	}

	if err != nil {
		return nil, errors.Wrap(err, "SetRange")
	}

	coreClient := minio.Core{Client: be.client}
	rd, _, _, err := coreClient.GetObject(ctx, be.cfg.Bucket, be.objectName(h), opts)
	if err != nil {
		return nil, err
	}

	return rd, nil
}

// Stat returns information about a file in the backend.
func (be *Backend) Stat(ctx context.Context, h backend.Handle) (backend.FileInfo, error) {
	objName := be.objectName(h)

	obj, err := be.client.StatObject(ctx, be.cfg.Bucket, objName, minio.StatObjectOptions{})
	if err != nil {
		return backend.FileInfo{}, errors.Wrap(err, "client.StatObject")
	}

	return backend.FileInfo{Size: obj.Size, Name: h.Name}, nil
}

// Remove removes the object with the given handle.
func (be *Backend) Remove(ctx context.Context, h backend.Handle) error {
	debug.Log("Remove %v", h)
	return errors.Wrap(be.client.RemoveObject(ctx, be.cfg.Bucket, be.objectName(h), minio.RemoveObjectOptions{}), "client.RemoveObject")
}

// List runs fn for each object in the backend which has the type t.
func (be *Backend) List(ctx context.Context, t backend.FileType, fn func(backend.FileInfo) error) error {
	prefix := path.Join(be.cfg.Prefix, string(t)) + "/"
	if t == backend.ConfigFile {
		prefix = path.Join(be.cfg.Prefix, "config")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range be.client.ListObjects(ctx, be.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return obj.Err
		}

		m := strings.TrimPrefix(obj.Key, prefix)
		if m == "" {
			continue
		}

		if err := fn(backend.FileInfo{Size: obj.Size, Name: path.Base(m)}); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return ctx.Err()
}

// Delete removes all data stored under the configured prefix.
func (be *Backend) Delete(ctx context.Context) error {
	for _, t := range []backend.FileType{backend.DataFile, backend.TreeFile, backend.KeyFile} {
		err := be.List(ctx, t, func(fi backend.FileInfo) error {
			return be.Remove(ctx, backend.Handle{Type: t, Name: fi.Name})
		})
		if err != nil {
			return err
		}
	}

	err := be.Remove(ctx, backend.Handle{Type: backend.ConfigFile})
	if err != nil && !be.IsNotExist(err) {
		return err
	}

	return nil
}

// Close does nothing.
func (be *Backend) Close() error { return nil }
