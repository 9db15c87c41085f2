// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agenthost/pkg/catalog"
)

type fakeExecutor struct{ active int }

func (f fakeExecutor) ActiveCount() int { return f.active }

type fakeCatalog struct{ err error }

func (f fakeCatalog) List(ctx context.Context, scopeID string) ([]*catalog.StoredModule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func TestCheckAllHealthyWithNoProbes(t *testing.T) {
	c := NewChecker(nil, nil)
	status := c.CheckAll(context.Background())
	require.NotNil(t, status)
	assert.Nil(t, status.ExecutorStatus)
	assert.NotNil(t, status.SystemStatus)
}

func TestCheckAllReportsActiveAgents(t *testing.T) {
	c := NewChecker(fakeExecutor{active: 3}, fakeCatalog{})
	status := c.CheckAll(context.Background())
	require.NotNil(t, status.ExecutorStatus)
	assert.Equal(t, 3, status.ExecutorStatus.ActiveAgents)
	assert.True(t, status.ExecutorStatus.CatalogReachable)
	assert.Equal(t, StatusHealthy, status.Status)
}

func TestCheckAllUnhealthyWhenCatalogUnreachable(t *testing.T) {
	c := NewChecker(fakeExecutor{active: 1}, fakeCatalog{err: errors.New("connection refused")})
	status := c.CheckAll(context.Background())
	require.NotNil(t, status.ExecutorStatus)
	assert.False(t, status.ExecutorStatus.CatalogReachable)
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.NotEmpty(t, status.Errors)
}

func TestCheckAllCatalogAbsentDoesNotFailReadiness(t *testing.T) {
	c := NewChecker(fakeExecutor{active: 0}, nil)
	status := c.CheckAll(context.Background())
	require.NotNil(t, status.ExecutorStatus)
	assert.True(t, status.ExecutorStatus.CatalogReachable)
	assert.Equal(t, StatusHealthy, status.Status)
}
