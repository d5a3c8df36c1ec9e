package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/evc/internal/testutil"
	"github.com/newtron-network/evc/pkg/cli"
	"github.com/newtron-network/evc/pkg/evc/config"
	"github.com/newtron-network/evc/pkg/evc/device/configdb"
	"github.com/newtron-network/evc/pkg/evc/ids"
)

func init() {
	cli.SetColor(false)
}

// resetFlags restores flag variables between Execute calls; cobra only
// assigns flags that appear on the command line.
func resetFlags() {
	inventoryPath = ""
	executeMode = false
	verbose = false
	jsonOutput = false
	serviceType = "p2p"
	serviceVLAN = 0
	serviceMTU = 0
	serviceDesc = ""
	renderParams = config.CLIParams{}
	renderRemove = false
	auditDevice, auditUser, auditService, auditRequest, auditLast = "", "", "", "", ""
	auditLimit = 100
	auditFailures = false
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

type lab struct {
	inventory string
	csr1      *testutil.RESTDevice
	pe1       *miniredis.Miniredis
}

// newLab starts a CLI device and a structured device and writes an
// inventory naming both. HOME points at a temporary directory.
func newLab(t *testing.T) *lab {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	csr1 := testutil.NewRESTDevice(t, "csr1")
	csr1.SetLoopback("10.255.0.1")
	pe1 := testutil.StartRedis(t)

	inv := fmt.Sprintf(`name: lab
defaults:
  rest:
    username: admin
    password: admin
nodes:
  csr1:
    address: %s
    capabilities: [urn:evc:cap:rest-cli]
    topologies: [mpls]
    rest:
      port: %d
  pe1:
    address: 127.0.0.1
    loopback: 10.255.0.21
    capabilities: [urn:evc:cap:configdb, urn:evc:cap:l2vpn]
    topologies: [mpls]
    configdb:
      address: %s
sips:
  csr1-gi4:
    node: csr1
    port: Gi4
    vlan: 100
  pe1-cust:
    node: pe1
    port: GigabitEthernet0/0/0/1
    vlan: 100
`, csr1.Host(), csr1.Port(), pe1.Addr())

	path := filepath.Join(home, "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(inv), 0644))
	return &lab{inventory: path, csr1: csr1, pe1: pe1}
}

func (l *lab) groups(t *testing.T) map[string]map[string]string {
	return testutil.DumpRedis(t, l.pe1.Addr(), configdb.DefaultConfigDB)[config.TableXConnectGroup]
}

func TestRender(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	golden, err := os.ReadFile("../../pkg/evc/config/testdata/service_instance.golden")
	require.NoError(t, err)

	out, err := run(t, "render", "--interface", "Gi4", "--instance", "23", "--vlan", "100",
		"--peer", "3.3.3.3", "--vcid", "3000")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimRight(string(golden), "\n")+"\n", out)
}

func TestRenderRemoval(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := run(t, "render", "--interface", "Gi4", "--instance", "23", "--remove", "--restore-interface")
	require.NoError(t, err)
	assert.Equal(t, "interface GigabitEthernet4\n no service instance 23 ethernet\n no mtu\n shutdown\n", out)
}

func TestRenderMissingParams(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := run(t, "render", "--instance", "23")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interface")
}

func TestActivatePreviewThenExecute(t *testing.T) {
	l := newLab(t)

	out, err := run(t, "-I", l.inventory, "activate", "svc-1", "csr1-gi4", "pe1-cust")
	require.NoError(t, err)
	assert.Contains(t, out, "rest-cli/csr1")
	assert.Contains(t, out, "l2vpn/pe1")
	assert.Contains(t, out, "xconnect 10.255.0.21")
	assert.Contains(t, out, "DRY-RUN")
	assert.Empty(t, l.csr1.Applied(), "preview must not change the CLI device")
	assert.Empty(t, l.groups(t), "preview must not change the structured device")

	out, err = run(t, "-I", l.inventory, "activate", "svc-1", "csr1-gi4,pe1-cust", "-x")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "COMMITTED"), out)
	assert.True(t, l.csr1.HasServiceInstance("GigabitEthernet4", 100))
	assert.Contains(t, l.groups(t), ids.XConnectGroupName("svc-1"))
	assert.Zero(t, l.csr1.ActiveTokens())

	out, err = run(t, "-I", l.inventory, "audit", "list", "--service", "svc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "COMMITTED")

	out, err = run(t, "-I", l.inventory, "deactivate", "svc-1", "csr1-gi4", "pe1-cust", "-x")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "COMMITTED"), out)
	assert.False(t, l.csr1.HasServiceInstance("GigabitEthernet4", 100))
	assert.NotContains(t, l.groups(t), ids.XConnectGroupName("svc-1"))
}

func TestActivateFailureRollsBack(t *testing.T) {
	l := newLab(t)
	l.csr1.FailApply(500, "% Invalid input detected")

	out, err := run(t, "-I", l.inventory, "activate", "svc-1", "csr1-gi4", "pe1-cust", "-x", "--json")
	require.Error(t, err)

	var v resultView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	states := map[string]string{}
	for _, d := range v.Drivers {
		states[d.Name] = d.State
	}
	assert.Equal(t, "ROLLED_BACK", states["l2vpn/pe1"])
	assert.Equal(t, "INITIALIZED", states["rest-cli/csr1"])
	assert.NotEmpty(t, v.Error)
	assert.Empty(t, l.groups(t))
}

func TestActivateFailureReportsRollback(t *testing.T) {
	l := newLab(t)
	l.csr1.FailApply(500, "% Invalid input detected")

	out, err := run(t, "-I", l.inventory, "activate", "svc-1", "csr1-gi4", "pe1-cust", "-x")
	require.Error(t, err)
	assert.Contains(t, out, "Changed devices were rolled back.")
}

func TestActivateInitializeFailureChangesNothing(t *testing.T) {
	l := newLab(t)
	testutil.SeedRedis(t, l.pe1.Addr(), configdb.DefaultStateDB, testutil.Tables{
		configdb.LockTable: {"pe1": {"holder": "evc-other"}},
	})

	out, err := run(t, "-I", l.inventory, "activate", "svc-1", "csr1-gi4", "pe1-cust", "-x")
	require.Error(t, err)
	assert.Contains(t, out, "No device was changed.")
	assert.NotContains(t, out, "rolled back")
	assert.Empty(t, l.csr1.Applied())
	assert.Empty(t, l.groups(t))
}

func TestActivateUnknownSIP(t *testing.T) {
	l := newLab(t)
	_, err := run(t, "-I", l.inventory, "activate", "svc-1", "csr1-gi4", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestActivateMultipointOnCLIDevice(t *testing.T) {
	l := newLab(t)
	_, err := run(t, "-I", l.inventory, "activate", "svc-1", "csr1-gi4", "pe1-cust", "--type", "mp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "point-to-point")
}

func TestCapabilities(t *testing.T) {
	l := newLab(t)

	out, err := run(t, "-I", l.inventory, "capabilities")
	require.NoError(t, err)
	assert.Contains(t, out, "csr1  driver: rest-cli")
	assert.Contains(t, out, "pe1  driver: l2vpn")

	out, err = run(t, "-I", l.inventory, "capabilities", "pe1", "--json")
	require.NoError(t, err)
	var reports []nodeCapabilities
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Predicates["l2vpn-model"])
	assert.False(t, reports[0].Predicates["rest-cli"])

	_, err = run(t, "-I", l.inventory, "capabilities", "pe9")
	assert.Error(t, err)
}

func TestSettingsCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := run(t, "settings", "set", "inventory", "/srv/lab.yaml")
	require.NoError(t, err)

	out, err := run(t, "settings", "get", "inventory")
	require.NoError(t, err)
	assert.Equal(t, "/srv/lab.yaml\n", out)

	out, err = run(t, "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "/srv/lab.yaml")
	assert.Contains(t, out, "restore_interface")

	_, err = run(t, "settings", "set", "rest_timeout", "soon")
	assert.Error(t, err)

	_, err = run(t, "settings", "clear")
	require.NoError(t, err)
	out, err = run(t, "settings", "get", "inventory")
	require.NoError(t, err)
	assert.Equal(t, "(not set)\n", out)
}

func TestIsSettingsOrHelp(t *testing.T) {
	assert.True(t, isSettingsOrHelp(settingsGetCmd))
	assert.True(t, isSettingsOrHelp(versionCmd))
	assert.False(t, isSettingsOrHelp(activateCmd))
	assert.False(t, isSettingsOrHelp(&cobra.Command{Use: "orphan"}))
}
