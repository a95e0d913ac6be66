package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/dsmolkov/vaultsweep/internal/common"
	"github.com/dsmolkov/vaultsweep/internal/config"
	"github.com/dsmolkov/vaultsweep/internal/logging"
)

// Transferrer syncs a local ciphertext directory to the remote object
// store under a key prefix.
type Transferrer interface {
	Transfer(ctx context.Context, localDir, prefix string) error
}

// s3API is the slice of the S3 client the transferrer needs. It
// matches s3.Client and is faked in tests.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Seams for tests, mirroring the aws-sdk construction call chain.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// S3Transferrer syncs directories to an S3-compatible endpoint with
// bounded parallelism. Sync semantics: changed and new files are
// uploaded; remote keys with no local counterpart are deleted,
// including keys for files excluded from the transfer ("delete
// excluded", so a file removed locally since the last sync also
// disappears remotely).
type S3Transferrer struct {
	cfg *config.Config
	log logging.Logger

	mu     sync.Mutex
	client s3API
}

func NewS3Transferrer(cfg *config.Config, log logging.Logger) *S3Transferrer {
	return &S3Transferrer{cfg: cfg, log: log}
}

func (t *S3Transferrer) getClient(ctx context.Context) (s3API, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	awscfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(t.cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			t.cfg.S3RootUser,
			t.cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	t.client = newS3ClientFromConfig(awscfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(t.cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})
	return t.client, nil
}

type localFile struct {
	path    string
	size    int64
	modTime time.Time
}

// Transfer syncs localDir to the bucket under prefix. Any failure is a
// network-class error; by the time a transfer runs the local side has
// already been unmounted, so a failed sync never undoes earlier stages.
func (t *S3Transferrer) Transfer(ctx context.Context, localDir, prefix string) error {
	client, err := t.getClient(ctx)
	if err != nil {
		return fmt.Errorf("transfer %s: %w: %v", prefix, common.ErrNetwork, err)
	}

	prefix = strings.Trim(prefix, "/") + "/"

	remote, err := t.listRemote(ctx, client, prefix)
	if err != nil {
		return fmt.Errorf("transfer %s: %w: %v", prefix, common.ErrNetwork, err)
	}

	local, err := t.gatherLocal(localDir, prefix)
	if err != nil {
		return fmt.Errorf("transfer %s: gather local files: %w", prefix, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.MaxParallelTransfers)

	for key, lf := range local {
		if obj, ok := remote[key]; ok && obj.size == lf.size && !lf.modTime.After(obj.modTime) {
			continue
		}
		key, lf := key, lf
		g.Go(func() error { return t.upload(gctx, client, key, lf) })
	}
	for key := range remote {
		if _, ok := local[key]; ok {
			continue
		}
		key := key
		g.Go(func() error {
			t.log.Info(gctx, "deleting remote object", "key", key)
			_, err := client.DeleteObject(gctx, &s3.DeleteObjectInput{
				Bucket: aws.String(t.cfg.S3Bucket),
				Key:    aws.String(key),
			})
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("transfer %s: %w: %v", prefix, common.ErrNetwork, err)
	}
	return nil
}

type remoteObject struct {
	size    int64
	modTime time.Time
}

func (t *S3Transferrer) listRemote(ctx context.Context, client s3API, prefix string) (map[string]remoteObject, error) {
	remote := make(map[string]remoteObject)

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(t.cfg.S3Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			ro := remoteObject{size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				ro.modTime = *obj.LastModified
			}
			remote[aws.ToString(obj.Key)] = ro
		}
	}
	return remote, nil
}

// gatherLocal maps remote keys to local files under localDir, skipping
// excluded base names (the crypto container's own configuration file
// must never leave the machine).
func (t *S3Transferrer) gatherLocal(localDir, prefix string) (map[string]localFile, error) {
	local := make(map[string]localFile)

	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		for _, name := range t.cfg.TransferExcludes {
			if d.Name() == name {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		local[prefix+filepath.ToSlash(rel)] = localFile{
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return local, nil
}

func (t *S3Transferrer) upload(ctx context.Context, client s3API, key string, lf localFile) error {
	f, err := os.Open(lf.path)
	if err != nil {
		return err
	}
	defer f.Close()

	t.log.Info(ctx, "uploading object", "key", key, "size", lf.size)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.cfg.S3Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(lf.size),
	})
	return err
}
