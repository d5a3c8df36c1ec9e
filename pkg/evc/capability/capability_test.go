package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	restNode = Snapshot{
		Node:         "csr1",
		Capabilities: []string{CapRESTCLI},
		Topologies:   []string{TopologyMPLS},
	}
	structuredNode = Snapshot{
		Node:         "pe1",
		Capabilities: []string{CapConfigDB, CapL2VPN},
		Topologies:   []string{TopologyMPLS, "access"},
	}
	bareNode = Snapshot{Node: "sw9"}
)

func TestSupportsAnd(t *testing.T) {
	r := DefaultRegistry()

	ok, err := r.Supports(structuredNode, []string{ConfigDB, L2VPNModel, MPLSTopology}, And)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Supports(structuredNode, []string{ConfigDB, QoSModel}, And)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Supports(bareNode, nil, And)
	require.NoError(t, err)
	assert.True(t, ok, "empty conjunction holds")
}

func TestSupportsOr(t *testing.T) {
	r := DefaultRegistry()

	ok, err := r.Supports(restNode, []string{ConfigDB, RESTCLI}, Or)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Supports(bareNode, []string{ConfigDB, RESTCLI, MPLSTopology}, Or)
	require.NoError(t, err)
	assert.False(t, ok, "node advertising nothing matches no driver family")

	ok, err = r.Supports(restNode, nil, Or)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSupportsUnknownPredicate(t *testing.T) {
	_, err := DefaultRegistry().Supports(restNode, []string{RESTCLI, "netconf"}, Or)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "netconf")
}

func TestRegisterCustom(t *testing.T) {
	r := NewRegistry()
	r.Register("access", InTopology("access"))

	ok, err := r.Supports(structuredNode, []string{"access"}, And)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"access"}, r.Names())
}

func TestEvaluate(t *testing.T) {
	got := DefaultRegistry().Evaluate(restNode)
	assert.Equal(t, map[string]bool{
		RESTCLI:      true,
		ConfigDB:     false,
		L2VPNModel:   false,
		QoSModel:     false,
		MPLSTopology: true,
	}, got)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "AND", And.String())
	assert.Equal(t, "OR", Or.String())
}
