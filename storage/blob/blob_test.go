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
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore runs the common create/list/open/remove scenario against a store.
func testStore(t *testing.T, client Store) {
	// create files
	require.NoError(t, WriteAll(client, "test.txt", []byte("hello")))
	require.NoError(t, WriteAll(client, "dir/nested.txt", []byte("world")))

	// list files
	names, err := client.List()
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"test.txt", "dir/nested.txt"}, names)

	// read file
	r, err := client.Open("test.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.NoError(t, r.Close())
	data, err = ReadAll(client, "dir/nested.txt")
	assert.NoError(t, err)
	assert.Equal(t, "world", string(data))

	// open missing file
	_, err = ReadAll(client, "missing.txt")
	assert.True(t, errors.Is(err, errors.NotFound), err)

	// remove files
	assert.NoError(t, client.Remove("test.txt"))
	assert.NoError(t, client.Remove("dir/nested.txt"))
	names, err = client.List()
	assert.NoError(t, err)
	assert.Empty(t, names)
}
