// SPDX-License-Identifier: LGPL-3.0-or-later

package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agenthost/pkg/catalog"
	"github.com/sage-x-project/agenthost/pkg/manifest"
)

func TestDefaultAssetsLoadSuccessfully(t *testing.T) {
	r := NewRegistry(DefaultAssets(), nil)
	list := r.List(context.Background(), "scope-1")
	require.Len(t, list, 1)
	assert.Equal(t, "builtin:echo", list[0].ID)
	assert.True(t, list[0].Active)
}

func TestPartialAssetFailureDoesNotBlockOthers(t *testing.T) {
	assets := []Asset{
		{Name: "broken", Load: func() (*manifest.AgentManifest, []byte, error) {
			return nil, nil, assertErr
		}},
		DefaultAssets()[0],
	}
	r := NewRegistry(assets, nil)
	list := r.List(context.Background(), "scope-1")
	require.Len(t, list, 1)
	assert.Equal(t, "builtin:echo", list[0].ID)
}

func TestSetEnabledIsPerScope(t *testing.T) {
	r := NewRegistry(DefaultAssets(), nil)
	ctx := context.Background()

	require.NoError(t, r.SetEnabled(ctx, "scope-1", "builtin:echo", false))

	m, err := r.Get(ctx, "scope-1", "builtin:echo")
	require.NoError(t, err)
	assert.False(t, m.Active)

	other, err := r.Get(ctx, "scope-2", "builtin:echo")
	require.NoError(t, err)
	assert.True(t, other.Active)
}

func TestSetEnabledUnknownIDReturnsNotFound(t *testing.T) {
	r := NewRegistry(DefaultAssets(), nil)
	err := r.SetEnabled(context.Background(), "scope-1", "builtin:nope", false)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestIsBuiltinPrefix(t *testing.T) {
	assert.True(t, IsBuiltin("builtin:echo"))
	assert.False(t, IsBuiltin("scope-1:my-agent"))
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

var assertErr = sentinelErr("load failed")
