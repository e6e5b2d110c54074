// Package blobstore lists and downloads objects from Cloud Storage buckets.
package blobstore

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/gcpauth"
	"github.com/effective-security/dataagents/pkg/metricskey"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "blobstore")

// DefaultWorkers is the number of concurrent downloads
const DefaultWorkers = 2

// Object in a bucket
type Object struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

// Config of the storage client
type Config struct {
	gcpauth.Config `yaml:",inline"`
	// Endpoint overrides the Cloud Storage JSON API endpoint
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Client is the Cloud Storage client
type Client struct {
	svc *storage.Service
}

// New returns the Cloud Storage client.
// When opts are not provided, credentials are loaded with gcpauth.
func New(ctx context.Context, cfg *Config, opts ...option.ClientOption) (*Client, error) {
	if len(opts) == 0 {
		creds, err := gcpauth.Credentials(&cfg.Config)
		if err != nil {
			return nil, err
		}
		opts = gcpauth.ClientOptions(creds)
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "blobstore: failed to create storage service")
	}
	return &Client{svc: svc}, nil
}

// List returns the objects in the bucket with the prefix
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var list []Object
	call := c.svc.Objects.List(bucket).Fields("items(name,size),nextPageToken")
	if prefix != "" {
		call = call.Prefix(prefix)
	}
	err := call.Pages(ctx, func(page *storage.Objects) error {
		for _, o := range page.Items {
			list = append(list, Object{Name: o.Name, Size: o.Size})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "blobstore: failed to list bucket %s", bucket)
	}
	return list, nil
}

// Download writes the object to w
func (c *Client) Download(ctx context.Context, bucket, name string, w io.Writer) (int64, error) {
	resp, err := c.svc.Objects.Get(bucket, name).Context(ctx).Download()
	if err != nil {
		return 0, errors.Wrapf(err, "blobstore: failed to download gs://%s/%s", bucket, name)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrapf(err, "blobstore: failed to read gs://%s/%s", bucket, name)
	}
	return n, nil
}

// DownloadFile downloads the object into the file
func (c *Client) DownloadFile(ctx context.Context, bucket, name, file string) (err error) {
	if err = os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.Create(file)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.WithStack(cerr)
		}
		if err != nil {
			_ = os.Remove(file)
		}
	}()

	_, err = c.Download(ctx, bucket, name, f)
	return err
}

// DownloadOptions specify DownloadAll
type DownloadOptions struct {
	// Prefix of object names
	Prefix string
	// Pattern is a glob matched against object names, ** is supported
	Pattern string
	// Workers is the number of concurrent downloads, DefaultWorkers when zero
	Workers int
}

// DownloadAll downloads the objects of the bucket into dir,
// and returns the paths of the downloaded files in listing order.
// Object names are kept as relative paths under dir.
func (c *Client) DownloadAll(ctx context.Context, bucket, dir string, opts DownloadOptions) ([]string, error) {
	if opts.Pattern != "" && !doublestar.ValidatePattern(opts.Pattern) {
		return nil, errors.Errorf("blobstore: invalid pattern: %s", opts.Pattern)
	}

	objects, err := c.List(ctx, bucket, opts.Prefix)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, o := range objects {
		// folder placeholders
		if strings.HasSuffix(o.Name, "/") {
			continue
		}
		if opts.Pattern != "" {
			ok, _ := doublestar.Match(opts.Pattern, o.Name)
			if !ok {
				continue
			}
		}
		names = append(names, o.Name)
	}

	// names such as a//b and a/b resolve to the same file, the first one is kept
	var files []string
	var unique []string
	seen := make(map[string]string, len(names))
	for _, name := range names {
		file, err := LocalPath(dir, name)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[file]; ok {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "duplicate_path", "bucket", bucket, "object", name, "kept", prev, "file", file)
			continue
		}
		seen[file] = name
		files = append(files, file)
		unique = append(unique, name)
	}
	names = unique

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		file := files[i]
		g.Go(func() error {
			if err := c.DownloadFile(gctx, bucket, name, file); err != nil {
				return err
			}
			metricskey.StatsBlobsDownloaded.IncrCounter(1, bucket)
			logger.ContextKV(gctx, xlog.DEBUG, "status", "downloaded", "bucket", bucket, "object", name, "file", file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.INFO, "status", "bucket_downloaded", "bucket", bucket, "objects", len(files), "dir", dir)
	return files, nil
}

// LocalPath returns the path of the object under dir.
// Names escaping dir are rejected.
func LocalPath(dir, name string) (string, error) {
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", errors.Errorf("blobstore: invalid object name: %q", name)
		}
	}
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", errors.Errorf("blobstore: invalid object name: %q", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean[1:])), nil
}
