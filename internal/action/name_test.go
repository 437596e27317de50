package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/start9labs/appmgr/internal/model"
)

func TestContainerNameRoundTrip(t *testing.T) {
	id := model.PackageId("bitcoind")
	v := model.MustParseVersion("24.0.1.0")

	name := ContainerName(id, v)
	assert.Equal(t, "service_bitcoind_24.0.1.0", name)

	got, ok := UncontainerName(name)
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestUncontainerNameRejectsForeignNames(t *testing.T) {
	_, ok := UncontainerName("some_other_container")
	assert.False(t, ok)

	_, ok = UncontainerName("service_")
	assert.False(t, ok)
}
