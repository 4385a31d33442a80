package archive

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/dbviz/types"
)

// MinioConfig configures an object-storage archive.
type MinioConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	// TempDir receives downloads for direct access. Empty uses os.TempDir.
	TempDir string
}

// MinioArchive reads the archive layout from an S3-compatible bucket.
// Keys ending in "/" are directory markers.
type MinioArchive struct {
	client  *minio.Client
	bucket  string
	prefix  string
	tempDir string

	// bucketExists is client.BucketExists.
	bucketExists func(ctx context.Context, bucket string) (bool, error)
	checkMu      sync.Mutex
	checked      bool
}

// NewMinioArchive creates an archive client. The bucket must exist.
func NewMinioArchive(cfg MinioConfig) (*MinioArchive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &MinioArchive{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		tempDir: cfg.TempDir,

		bucketExists: client.BucketExists,
	}, nil
}

// ensureBucket verifies the bucket once. Only a successful check is
// remembered, so a transient failure is retried on the next call.
func (a *MinioArchive) ensureBucket(ctx context.Context) error {
	a.checkMu.Lock()
	defer a.checkMu.Unlock()
	if a.checked {
		return nil
	}
	ok, err := a.bucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !ok {
		return fmt.Errorf("%w: bucket %s", ErrNotFound, a.bucket)
	}
	a.checked = true
	return nil
}

func (a *MinioArchive) key(parts ...string) string {
	return objectKey(a.prefix, parts...)
}

// objectKey joins key parts under prefix with single slashes.
func objectKey(prefix string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if prefix != "" {
		all = append(all, prefix)
	}
	all = append(all, parts...)
	return strings.TrimLeft(path.Join(all...), "/")
}

func (a *MinioArchive) dataPrefix(containerID, subID string) string {
	return a.key(containerID, SubContainersDir, subID, DataDir) + "/"
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// RetrieveContainer reads container.yaml and lists sub-container prefixes.
func (a *MinioArchive) RetrieveContainer(ctx context.Context, containerID string) (types.Container, error) {
	if err := ValidateID("container", containerID); err != nil {
		return types.Container{}, err
	}
	if err := a.ensureBucket(ctx); err != nil {
		return types.Container{}, err
	}

	obj, err := a.client.GetObject(ctx, a.bucket, a.key(containerID, ContainerMetadataFile), minio.GetObjectOptions{})
	if err != nil {
		return types.Container{}, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return types.Container{}, fmt.Errorf("%w: container %s", ErrNotFound, containerID)
		}
		return types.Container{}, err
	}
	var meta containerMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return types.Container{}, fmt.Errorf("parse %s metadata: %w", containerID, err)
	}

	c := types.Container{ID: containerID, Title: meta.Title, Permissions: meta.Permissions}
	subPrefix := a.key(containerID, SubContainersDir) + "/"
	var subs []string
	for info := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: subPrefix}) {
		if info.Err != nil {
			return types.Container{}, info.Err
		}
		name := strings.TrimSuffix(strings.TrimPrefix(info.Key, subPrefix), "/")
		if name != "" && strings.HasSuffix(info.Key, "/") {
			subs = append(subs, name)
		}
	}
	sort.Strings(subs)
	for _, s := range subs {
		c.SubContainers = append(c.SubContainers, types.SubContainer{ContainerID: containerID, ID: s})
	}
	return c, nil
}

// RetrieveSubContainer checks that at least one object exists under the
// sub-container.
func (a *MinioArchive) RetrieveSubContainer(ctx context.Context, containerID, subID string) (types.SubContainer, error) {
	if err := ValidateID("container", containerID); err != nil {
		return types.SubContainer{}, err
	}
	if err := ValidateID("sub-container", subID); err != nil {
		return types.SubContainer{}, err
	}
	if err := a.ensureBucket(ctx); err != nil {
		return types.SubContainer{}, err
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	prefix := a.key(containerID, SubContainersDir, subID) + "/"
	for info := range a.client.ListObjects(listCtx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true, MaxKeys: 1}) {
		if info.Err != nil {
			return types.SubContainer{}, info.Err
		}
		return types.SubContainer{ContainerID: containerID, ID: subID}, nil
	}
	return types.SubContainer{}, fmt.Errorf("%w: sub-container %s/%s", ErrNotFound, containerID, subID)
}

// RetrieveLeaf stats the leaf object, falling back to a directory marker.
func (a *MinioArchive) RetrieveLeaf(ctx context.Context, containerID, subID, relPath string) (types.Leaf, error) {
	if err := ValidateRelPath(relPath); err != nil {
		return types.Leaf{}, err
	}
	if err := a.ensureBucket(ctx); err != nil {
		return types.Leaf{}, err
	}

	key := a.dataPrefix(containerID, subID) + strings.Trim(relPath, "/")
	if _, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{}); err == nil {
		return leafFromRel(containerID, subID, relPath, false), nil
	} else if !isNoSuchKey(err) {
		return types.Leaf{}, err
	}
	if _, err := a.client.StatObject(ctx, a.bucket, key+"/", minio.StatObjectOptions{}); err == nil {
		return leafFromRel(containerID, subID, relPath, true), nil
	}
	return types.Leaf{}, fmt.Errorf("%w: leaf %s/%s/%s", ErrNotFound, containerID, subID, relPath)
}

// ListLeaves lists every object under the data prefix. Listing order is
// the store's lexical key order.
func (a *MinioArchive) ListLeaves(ctx context.Context, containerID, subID string) iter.Seq2[types.Leaf, error] {
	return func(yield func(types.Leaf, error) bool) {
		if err := a.ensureBucket(ctx); err != nil {
			yield(types.Leaf{}, err)
			return
		}

		listCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		prefix := a.dataPrefix(containerID, subID)
		for info := range a.client.ListObjects(listCtx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if info.Err != nil {
				yield(types.Leaf{}, fmt.Errorf("list %s/%s: %w", containerID, subID, info.Err))
				return
			}
			rel := strings.TrimPrefix(info.Key, prefix)
			if rel == "" {
				continue
			}
			if !yield(leafFromRel(containerID, subID, rel, strings.HasSuffix(rel, "/")), nil) {
				return
			}
		}
	}
}

// DirectAccess downloads the leaf to a temporary file that Close removes.
func (a *MinioArchive) DirectAccess(ctx context.Context, leaf types.Leaf) (*SourceFile, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(a.tempDir, "dbviz-src-*")
	if err != nil {
		return nil, fmt.Errorf("direct access %s: %w", leaf.IdentityPath(), err)
	}
	local := filepath.Join(dir, leaf.ID)
	key := a.dataPrefix(leaf.ContainerID, leaf.SubContainerID) + leaf.RelativePath()
	if err := a.client.FGetObject(ctx, a.bucket, key, local, minio.GetObjectOptions{}); err != nil {
		_ = os.RemoveAll(dir)
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: leaf %s", ErrNotFound, leaf.IdentityPath())
		}
		return nil, fmt.Errorf("direct access %s: %w", leaf.IdentityPath(), err)
	}
	return NewSourceFile(local, func() error { return os.RemoveAll(dir) }), nil
}

// Close is a no-op; the minio client holds no resources needing release.
func (a *MinioArchive) Close() error {
	return nil
}

var _ Archive = (*MinioArchive)(nil)
