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
	"errors"
	"os"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/gorse-io/gorse-tuner/config"
	"github.com/stretchr/testify/require"
)

func TestAzureBlob(t *testing.T) {
	connectionString := os.Getenv("AZURE_STORAGE_CONNECTION_STRING")
	if connectionString == "" {
		t.Skip("AZURE_STORAGE_CONNECTION_STRING is not set")
	}
	client, err := NewAzureBlob(config.AzureBlobConfig{
		Container:        "gorse-test",
		ConnectionString: connectionString,
	}, "blob")
	require.NoError(t, err)

	// create container if not exists
	_, err = client.client.CreateContainer(context.Background(), "gorse-test", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		require.True(t, errors.As(err, &respErr))
		require.Equal(t, string(bloberror.ContainerAlreadyExists), respErr.ErrorCode)
	}
	testStore(t, client)
}
