package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/evc/pkg/evc/service"
)

func golden(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestRenderServiceInstanceGolden(t *testing.T) {
	ep := service.Endpoint{Device: "csr1", Port: "Gi4", VLAN: 100}

	text, err := RenderServiceInstance(CLIParams{
		Interface:       ep.InterfaceName(),
		ServiceInstance: 23,
		VLAN:            ep.VLAN,
		PeerIP:          "3.3.3.3",
		VCID:            3000,
	})
	require.NoError(t, err)

	want := "interface GigabitEthernet4\nmtu 1522\nno ip address\nno service instance 23 ethernet\nno shutdown\n" +
		"service instance 23 ethernet\nencapsulation dot1q 100\nxconnect 3.3.3.3 3000 encapsulation mpls\nmtu 1508"
	assert.Equal(t, want, text)
	assert.Equal(t, golden(t, "service_instance.golden"), text)
}

func TestRenderServiceInstanceRemovalGolden(t *testing.T) {
	text, err := RenderServiceInstanceRemoval(CLIParams{Interface: "GigabitEthernet4", ServiceInstance: 23})
	require.NoError(t, err)

	assert.Equal(t, "interface GigabitEthernet4\n no service instance 23 ethernet", text)
	assert.Equal(t, golden(t, "service_instance_removal.golden"), text)
}

func TestRenderServiceInstanceRemovalRestore(t *testing.T) {
	text, err := RenderServiceInstanceRemoval(CLIParams{Interface: "GigabitEthernet4", ServiceInstance: 23, RestoreInterface: true})
	require.NoError(t, err)
	assert.Equal(t, "interface GigabitEthernet4\n no service instance 23 ethernet\n no mtu\n shutdown", text)
}

func TestRenderServiceInstanceUntagged(t *testing.T) {
	text, err := RenderServiceInstance(CLIParams{Interface: "GigabitEthernet2", ServiceInstance: 1, PeerIP: "2.2.2.2", VCID: 7})
	require.NoError(t, err)
	assert.Contains(t, text, "\nencapsulation untagged\n")
}

func TestRenderServiceInstanceMissingParams(t *testing.T) {
	_, err := RenderServiceInstance(CLIParams{Interface: "GigabitEthernet2", ServiceInstance: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer ip")
	assert.Contains(t, err.Error(), "vc-id")

	_, err = RenderServiceInstanceRemoval(CLIParams{ServiceInstance: 1})
	assert.Error(t, err)
}
