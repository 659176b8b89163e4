package topology_test

import (
	"testing"

	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/topology"
	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	assert := assert.New(t)

	viewer, err := topology.Plan(models.RoleViewer, topology.Dual)
	assert.NoError(err)
	assert.Len(viewer, 1)
	assert.Empty(viewer[0].Identity)
	assert.Empty(viewer[0].Sources)

	dual, err := topology.Plan(models.RoleHost, topology.Dual)
	assert.NoError(err)
	assert.Len(dual, 2)
	assert.Equal(topology.ScreenIdentity, dual[0].Identity)
	assert.True(dual[0].Publishes(models.SourceScreen))
	assert.False(dual[0].Publishes(models.SourceCamera))
	assert.Equal(topology.CameraIdentity, dual[1].Identity)
	assert.True(dual[1].Publishes(models.SourceCamera))
	assert.NotEqual(dual[0].Identity, dual[1].Identity)

	single, err := topology.Plan(models.RoleHost, topology.Single)
	assert.NoError(err)
	assert.Len(single, 1)
	assert.Empty(single[0].Identity)
	assert.True(single[0].Publishes(models.SourceScreen))
	assert.True(single[0].Publishes(models.SourceCamera))

	_, err = topology.Plan("moderator", topology.Dual)
	assert.Error(err)

	_, err = topology.Plan(models.RoleHost, topology.Variant(7))
	assert.Error(err)
}

func TestIdentitySource(t *testing.T) {
	assert := assert.New(t)

	source, ok := topology.IdentitySource(topology.ScreenIdentity)
	assert.True(ok)
	assert.Equal(models.SourceScreen, source)

	source, ok = topology.IdentitySource(topology.CameraIdentity)
	assert.True(ok)
	assert.Equal(models.SourceCamera, source)

	_, ok = topology.IdentitySource("user-1")
	assert.False(ok)
}
