package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider stores objects as plain files under a root directory.
// It backs the single process deployment and tests; production uses S3.
type LocalProvider struct {
	dir string
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(dir string) *LocalProvider {
	return &LocalProvider{dir: dir}
}

func (p *LocalProvider) CreateBucket(ctx context.Context, bucket string) error {
	return os.MkdirAll(filepath.Join(p.dir, bucket), os.ModePerm)
}

func (p *LocalProvider) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.dir, bucket, key))
}

func (p *LocalProvider) DownloadObject(ctx context.Context, bucket, key, filename string) error {
	src, err := os.Open(filepath.Join(p.dir, bucket, key))
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
		return err
	}

	dst, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	return nil
}

func (p *LocalProvider) DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error {
	if _, err := os.Stat(dest); err == nil && !overwrite {
		return nil
	}

	objects, err := p.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return err
	}

	cleanPrefix := strings.TrimSuffix(prefix, "/") + "/"
	for _, obj := range objects {
		localPath := filepath.Join(dest, strings.TrimPrefix(obj.Name, cleanPrefix))
		if err := p.DownloadObject(ctx, bucket, obj.Name, localPath); err != nil {
			return err
		}
	}

	return nil
}

func (p *LocalProvider) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	path := filepath.Join(p.dir, bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return err
	}

	return nil
}

func (p *LocalProvider) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	root := filepath.Join(p.dir, bucket)

	var objects []Object
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		name := strings.TrimPrefix(strings.TrimPrefix(path, root), string(os.PathSeparator))
		name = filepath.ToSlash(name)
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			return nil
		}

		objects = append(objects, Object{Name: name, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

func (p *LocalProvider) IterObjects(ctx context.Context, bucket, prefix string) ObjectIterator {
	return func(yield func(obj Object, err error) bool) {
		objects, err := p.ListObjects(ctx, bucket, prefix)
		if err != nil {
			yield(Object{}, err)
			return
		}

		for _, obj := range objects {
			if !yield(obj, nil) {
				return
			}
		}
	}
}
