package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/evc/internal/testutil"
	"github.com/newtron-network/evc/pkg/auth"
	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/device/configdb"
	"github.com/newtron-network/evc/pkg/evc/device/rest"
	"github.com/newtron-network/evc/pkg/util"
)

func load(t *testing.T) *Inventory {
	t.Helper()
	inv, err := Load("testdata/inventory.yaml")
	require.NoError(t, err)
	return inv
}

func TestLoad(t *testing.T) {
	inv := load(t)
	assert.Equal(t, "lab", inv.Name)
	assert.Equal(t, []string{"csr1", "csr2", "pe1", "pe2"}, inv.NodeNames())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	inv := load(t)
	snap, err := inv.Snapshot(testutil.Context(t), "pe1")
	require.NoError(t, err)
	assert.True(t, snap.Advertises(capability.CapQoS))
	assert.True(t, snap.MemberOf("core"))

	ok, err := capability.DefaultRegistry().Supports(snap,
		[]string{capability.ConfigDB, capability.L2VPNModel}, capability.And)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = inv.Snapshot(testutil.Context(t), "pe9")
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestRESTTarget(t *testing.T) {
	inv := load(t)

	target, err := inv.RESTTarget("csr1")
	require.NoError(t, err)
	assert.Equal(t, rest.Target{Address: "192.0.2.11", Port: 8443, Username: "admin", Password: "admin"}, target)

	target, err = inv.RESTTarget("csr2")
	require.NoError(t, err)
	assert.Equal(t, "operator", target.Username, "node overrides defaults")
	assert.Equal(t, "admin", target.Password)
}

func TestConfigDBTarget(t *testing.T) {
	inv := load(t)

	target, err := inv.ConfigDBTarget("pe1")
	require.NoError(t, err)
	assert.Equal(t, configdb.Target{SSHHost: "192.0.2.21", SSHUser: "admin", SSHPass: "YourPaSsWoRd"}, target)

	target, err = inv.ConfigDBTarget("pe2")
	require.NoError(t, err)
	assert.Equal(t, configdb.Target{Address: "192.0.2.22:6380", ConfigDB: 4}, target)

	target, err = inv.ConfigDBTarget("csr1")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.11:6379", target.Address)
}

func TestLoopback(t *testing.T) {
	inv := load(t)
	ip, ok := inv.Loopback("pe1")
	assert.True(t, ok)
	assert.Equal(t, "10.255.0.21", ip)

	_, ok = inv.Loopback("pe2")
	assert.False(t, ok)
}

func TestResolveSIP(t *testing.T) {
	inv := load(t)

	ep, err := inv.ResolveSIP("pe1-cust", 0)
	require.NoError(t, err)
	assert.Equal(t, "pe1", ep.Device)
	assert.Equal(t, "mpls", ep.Topology)
	assert.False(t, ep.Tagged())
	require.NotNil(t, ep.Ingress)
	assert.Equal(t, uint64(10000000), ep.Ingress.CIR)

	ep, err = inv.ResolveSIP("csr1-gi4", 200)
	require.NoError(t, err)
	assert.Equal(t, 200, ep.VLAN, "explicit vlan wins")

	eps, err := inv.Endpoints([]string{"csr1-gi4", "csr2-gi4"}, 0)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "csr2", eps[1].Device)

	_, err = inv.Endpoints([]string{"csr1-gi4", "missing"}, 0)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no nodes", "sips: {}\n"},
		{"missing address", "nodes:\n  a:\n    capabilities: []\n"},
		{"bad loopback", "nodes:\n  a:\n    address: 192.0.2.1\n    loopback: nope\n"},
		{"unknown sip node", "nodes:\n  a:\n    address: 192.0.2.1\nsips:\n  s:\n    node: b\n    port: Gi1\n"},
		{"sip without port", "nodes:\n  a:\n    address: 192.0.2.1\nsips:\n  s:\n    node: a\n"},
		{"vlan out of range", "nodes:\n  a:\n    address: 192.0.2.1\nsips:\n  s:\n    node: a\n    port: Gi1\n    vlan: 5000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, util.ErrValidationFailed))
		})
	}

	_, err := Parse([]byte("nodes: [1, 2\n"))
	assert.Error(t, err)
}

func TestAccessPolicy(t *testing.T) {
	inv := load(t)
	require.NotNil(t, inv.Access)

	checker := auth.NewChecker(inv.Access)
	assert.NoError(t, checker.CheckUser("alice", auth.PermServiceActivate, nil))
	assert.Error(t, checker.CheckUser("eve", auth.PermServiceActivate, nil))
	assert.NoError(t, checker.CheckUser("eve", auth.PermServicePreview, nil))
}
