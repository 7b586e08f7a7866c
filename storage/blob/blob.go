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
	"io"
	"strings"

	"github.com/gorse-io/gorse-tuner/config"
	"github.com/juju/errors"
)

// Store is a flat namespace of named blobs. Names use "/" as separator.
type Store interface {
	// Open a blob for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a blob for writing. The done channel is closed once the content is durable.
	Create(name string) (io.WriteCloser, chan struct{}, error)
	// List names of all blobs.
	List() ([]string, error)
	// Remove a blob.
	Remove(name string) error
}

// Open creates the store configured by cfg. root is the directory for POSIX and the
// object prefix for cloud backends.
func Open(cfg config.StorageConfig, root string) (Store, error) {
	switch cfg.Type {
	case config.StoragePOSIX, "":
		return NewPOSIX(root), nil
	case config.StorageS3:
		return NewS3(cfg.S3, root)
	case config.StorageGCS:
		return NewGCS(cfg.GCS, root)
	case config.StorageAzure:
		return NewAzureBlob(cfg.Azure, root)
	default:
		return nil, errors.NotSupportedf("storage type %s", cfg.Type)
	}
}

// WriteAll creates a blob, writes data and waits until it is durable.
func WriteAll(store Store, name string, data []byte) error {
	w, done, err := store.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = w.Write(data); err != nil {
		_ = w.Close()
		<-done
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		<-done
		return errors.Trace(err)
	}
	<-done
	return nil
}

// ReadAll reads the whole content of a blob.
func ReadAll(store Store, name string) ([]byte, error) {
	r, err := store.Open(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	return data, errors.Trace(err)
}

func trimPrefix(name, prefix string) string {
	name = strings.TrimPrefix(name, prefix)
	return strings.TrimPrefix(name, "/")
}

// uploadWriter streams content to an asynchronous upload and reports its result on Close.
type uploadWriter struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func newUploadWriter(upload func(r io.Reader) error) *uploadWriter {
	pr, pw := io.Pipe()
	w := &uploadWriter{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = upload(pr)
		_ = pr.CloseWithError(w.err)
	}()
	return w
}

func (w *uploadWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return err
	}
	<-w.done
	return w.err
}
