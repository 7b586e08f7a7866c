// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"context"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/gorse-io/gorse-tuner/config"
	"github.com/juju/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS keeps blobs as objects under a prefix of a Google Cloud Storage bucket.
type GCS struct {
	bucket *storage.BucketHandle
	prefix string
}

func NewGCS(cfg config.GCSConfig, prefix string) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Annotate(err, "create gcs client")
	}
	return NewGCSWithClient(client, cfg.Bucket, prefix), nil
}

func NewGCSWithClient(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{bucket: client.Bucket(bucket), prefix: prefix}
}

func (g *GCS) object(name string) *storage.ObjectHandle {
	return g.bucket.Object(path.Join(g.prefix, name))
}

func (g *GCS) Open(name string) (io.ReadCloser, error) {
	r, err := g.object(name).NewReader(context.Background())
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.NotFoundf("blob %s", name)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

func (g *GCS) Create(name string) (io.WriteCloser, chan struct{}, error) {
	w := &gcsWriter{Writer: g.object(name).NewWriter(context.Background()), done: make(chan struct{})}
	return w, w.done, nil
}

// gcsWriter commits the object on Close and then signals done.
type gcsWriter struct {
	*storage.Writer
	done chan struct{}
}

func (w *gcsWriter) Close() error {
	defer close(w.done)
	return errors.Trace(w.Writer.Close())
}

func (g *GCS) List() ([]string, error) {
	var names []string
	it := g.bucket.Objects(context.Background(), &storage.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if name := trimPrefix(attrs.Name, g.prefix); name != "" {
			names = append(names, name)
		}
	}
}

func (g *GCS) Remove(name string) error {
	err := g.object(name).Delete(context.Background())
	if errors.Is(err, storage.ErrObjectNotExist) {
		return errors.NotFoundf("blob %s", name)
	}
	return errors.Trace(err)
}
