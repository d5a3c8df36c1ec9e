// Evc - Carrier-Ethernet service activation
//
// A CLI tool that provisions point-to-point and multipoint Ethernet services
// across devices with different configuration models:
//   - Structured-config devices, written through their configuration database
//   - CLI devices, configured with text over a token-authenticated REST API
//   - Dry-run by default (preview changes, require -x to execute)
//   - Rollback of every device already changed when one device fails
//   - Audit logging of all changes
//
// Endpoints are named by service interface points (SIPs) from the inventory:
//
//	evc activate <service-id> <sip> <sip> [<sip>...] [--type mp] [--vlan N] [-x]
//	evc deactivate <service-id> <sip> <sip> [<sip>...] [-x]
//
// Examples:
//
//	evc activate 6f1c2a10-2b41-4a53-9e3e-1f3c40d2b1aa csr1-gi4 pe1-cust --vlan 100
//	evc activate svc-42 pe1-cust pe2-cust csr1-gi4 --type mp -x
//	evc capabilities pe1
//	evc render --interface Gi4 --instance 1 --vlan 100 --peer 10.255.0.2 --vcid 4711
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newtron-network/evc/pkg/audit"
	"github.com/newtron-network/evc/pkg/auth"
	"github.com/newtron-network/evc/pkg/cli"
	"github.com/newtron-network/evc/pkg/evc/capability"
	"github.com/newtron-network/evc/pkg/evc/device"
	"github.com/newtron-network/evc/pkg/evc/device/configdb"
	"github.com/newtron-network/evc/pkg/evc/device/rest"
	"github.com/newtron-network/evc/pkg/evc/driver"
	"github.com/newtron-network/evc/pkg/evc/driver/clidriver"
	"github.com/newtron-network/evc/pkg/evc/driver/l2vpn"
	"github.com/newtron-network/evc/pkg/evc/topology"
	"github.com/newtron-network/evc/pkg/settings"
	"github.com/newtron-network/evc/pkg/util"
	"github.com/newtron-network/evc/pkg/version"
)

var (
	// Global option flags
	inventoryPath string
	executeMode   bool
	verbose       bool
	jsonOutput    bool

	// Global state
	userSettings *settings.Settings
	inv          *topology.Inventory
	permChecker  *auth.Checker
)

// needsInventory marks commands that resolve nodes or SIPs.
const needsInventory = "inventory"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "evc",
	Short:             "Carrier-Ethernet service activation",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Evc provisions Ethernet services across structured-config and CLI devices.

Endpoints are service interface points (SIPs) named in the inventory.
Write commands preview changes by default; use -x to execute.

  evc activate <service-id> <sip> <sip> [<sip>...] [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for certain commands
		if isSettingsOrHelp(cmd) {
			return nil
		}

		// Load user settings
		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		// Set log level: quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		if cmd.Annotations[needsInventory] == "" {
			return nil
		}

		if inventoryPath == "" {
			inventoryPath = userSettings.GetInventory()
		}
		inv, err = topology.Load(inventoryPath)
		if err != nil {
			return err
		}
		if inv.Defaults.REST.Username == "" {
			inv.Defaults.REST.Username = userSettings.RESTUsername
		}

		// Initialize permission checker
		permChecker = auth.NewChecker(inv.Access)

		// Initialize audit logger
		auditLogger, err := audit.NewFileLogger(userSettings.GetAuditLog(), audit.RotationConfig{
			MaxSizeMB:  10,
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "I", "", "Inventory file (default from settings, then "+topology.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	for _, cmd := range []*cobra.Command{activateCmd, deactivateCmd} {
		addWriteFlags(cmd)
		addServiceFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{activateCmd, deactivateCmd, capabilitiesCmd, auditListCmd} {
		addOutputFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{activateCmd, deactivateCmd, capabilitiesCmd, auditListCmd} {
		if cmd.Annotations == nil {
			cmd.Annotations = map[string]string{}
		}
		cmd.Annotations[needsInventory] = "true"
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "service", Title: "Service Operations:"},
		&cobra.Group{ID: "query", Title: "Inspection:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{activateCmd, deactivateCmd} {
		cmd.GroupID = "service"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{capabilitiesCmd, renderCmd} {
		cmd.GroupID = "query"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Fprintln(cmd.OutOrStdout(), "evc dev build (use 'make build' for version info)")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "evc %s\n", version.Info())
		}
	},
}

// isSettingsOrHelp checks whether cmd (or any ancestor) is a settings, help, or version command.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// addWriteFlags registers -x/--execute as a local flag.
func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&executeMode, "execute", "x", false, "Execute changes (default is dry-run)")
}

// addOutputFlags registers --json as a local flag.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
}

// builders returns the driver families in selection order. The executors
// may be nil when only requirements are inspected.
func builders(configdbExec, restExec device.Executor) []driver.Builder {
	return []driver.Builder{
		l2vpn.NewBuilder(configdbExec, l2vpn.Options{
			Loopbacks:       inv,
			DefaultLoopback: userSettings.DefaultLoopback,
		}),
		clidriver.NewBuilder(restExec, clidriver.Options{
			RestoreInterface: userSettings.RestoreInterface,
		}),
	}
}

// newDispatcher wires the transports and driver families for the devices of
// a request. The returned cleanup unmounts every structured-config device.
func newDispatcher(devices []string) (*driver.Dispatcher, func(), error) {
	if err := ensureCredentials(devices); err != nil {
		return nil, nil, err
	}

	registry := configdb.NewRegistry(inv)
	timeout := time.Duration(userSettings.RESTTimeout) * time.Second
	d := driver.NewDispatcher(inv, builders(configdb.NewExecutor(registry), rest.NewExecutor(inv, timeout))...)
	d.Audit = audit.DefaultLogger()
	d.User = permChecker.CurrentUser()

	cleanup := func() {
		if err := registry.Close(); err != nil {
			util.Warnf("closing device mounts: %v", err)
		}
	}
	return d, cleanup, nil
}

// ensureCredentials prompts for passwords the inventory leaves out, for the
// transports the given devices use.
func ensureCredentials(devices []string) error {
	for _, name := range devices {
		n, ok := inv.Nodes[name]
		if !ok {
			continue
		}
		snap, _ := inv.Snapshot(context.Background(), name)

		if snap.Advertises(capability.CapRESTCLI) {
			t, err := inv.RESTTarget(name)
			if err != nil {
				return err
			}
			if t.Password == "" {
				pw, err := promptPassword(fmt.Sprintf("REST password for %s@%s: ", t.Username, name))
				if err != nil {
					return err
				}
				creds := topology.Credentials{}
				if n.REST != nil {
					creds = *n.REST
				}
				creds.Password = pw
				n.REST = &creds
			}
		}

		if n.ConfigDB != nil && n.ConfigDB.SSH != nil {
			t, err := inv.ConfigDBTarget(name)
			if err != nil {
				return err
			}
			if t.SSHPass == "" {
				pw, err := promptPassword(fmt.Sprintf("SSH password for %s@%s: ", t.SSHUser, name))
				if err != nil {
					return err
				}
				access := *n.ConfigDB
				ssh := *access.SSH
				ssh.Password = pw
				access.SSH = &ssh
				n.ConfigDB = &access
			}
		}

		inv.Nodes[name] = n
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%sno password in inventory and stdin is not a terminal", prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// checkPermission verifies the current user may perform perm.
func checkPermission(perm auth.Permission, ctx *auth.Context) error {
	return permChecker.Check(perm, ctx)
}

// Helper to print dry-run notice
func printDryRunNotice(cmd *cobra.Command) {
	if !executeMode {
		fmt.Fprintln(cmd.OutOrStdout(), "\n"+cli.Yellow("DRY-RUN: No changes applied. Use -x to execute."))
	}
}
