package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/evc/pkg/audit"
	"github.com/newtron-network/evc/pkg/auth"
	"github.com/newtron-network/evc/pkg/cli"
	"github.com/newtron-network/evc/pkg/evc/driver"
	"github.com/newtron-network/evc/pkg/evc/ids"
	"github.com/newtron-network/evc/pkg/evc/service"
	"github.com/newtron-network/evc/pkg/util"
)

var (
	serviceType string
	serviceVLAN int
	serviceMTU  int
	serviceDesc string
)

func addServiceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&serviceType, "type", "t", "p2p", "Service type: p2p or mp")
	cmd.Flags().IntVar(&serviceVLAN, "vlan", 0, "VLAN for every endpoint (overrides the SIP's own)")
	cmd.Flags().IntVar(&serviceMTU, "mtu", 0, "Service MTU")
	cmd.Flags().StringVar(&serviceDesc, "description", "", "Service description")
}

var activateCmd = &cobra.Command{
	Use:   "activate <service-id> <sip> <sip> [<sip>...]",
	Short: "Provision a service on its endpoints",
	Long: `Provision a service on the devices of its endpoints.

SIPs may be given as separate arguments or comma-separated.
Every device is initialized before any is changed. If one device fails,
the devices already changed are rolled back in reverse order.

Examples:
  evc activate svc-42 csr1-gi4 pe1-cust --vlan 100
  evc activate svc-42 csr1-gi4 pe1-cust --vlan 100 -x
  evc activate svc-43 pe1-cust pe2-cust csr2-gi4 --type mp -x`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd, args, driver.OpActivate)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <service-id> <sip> <sip> [<sip>...]",
	Short: "Remove a service from its endpoints",
	Long: `Remove a service from the devices of its endpoints.

Objects shared by several endpoints of the request are removed once.

Examples:
  evc deactivate svc-42 csr1-gi4 pe1-cust --vlan 100
  evc deactivate svc-42 csr1-gi4 pe1-cust --vlan 100 -x`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd, args, driver.OpDeactivate)
	},
}

// buildRequest resolves SIPs into a validated service request.
func buildRequest(serviceID string, sips []string) (*service.Request, error) {
	typ, err := service.ParseType(serviceType)
	if err != nil {
		return nil, err
	}
	endpoints, err := inv.Endpoints(sips, serviceVLAN)
	if err != nil {
		return nil, err
	}
	req := &service.Request{
		ServiceID: serviceID,
		Type:      typ,
		Endpoints: endpoints,
		Attributes: service.Attributes{
			MTU:         serviceMTU,
			Description: serviceDesc,
		},
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func runService(cmd *cobra.Command, args []string, op driver.Op) error {
	ctx := context.Background()
	var sips []string
	for _, arg := range args[1:] {
		sips = append(sips, util.SplitCommaSeparated(arg)...)
	}
	req, err := buildRequest(args[0], sips)
	if err != nil {
		return err
	}

	perm := auth.PermServicePreview
	if executeMode {
		perm = auth.PermServiceActivate
		if op == driver.OpDeactivate {
			perm = auth.PermServiceDeactivate
		}
	}
	if err := checkPermission(perm, auth.NewContext().WithService(req.ServiceID)); err != nil {
		return err
	}

	d, cleanup, err := newDispatcher(req.Devices())
	if err != nil {
		return err
	}
	defer cleanup()

	if !executeMode {
		previews, err := d.Preview(ctx, req, op)
		if err != nil {
			return err
		}
		recordPreviews(req, op, previews)
		printPreviews(cmd, req, op, previews)
		return nil
	}

	var result *driver.Result
	if op == driver.OpDeactivate {
		result, err = d.Deactivate(ctx, req)
	} else {
		result, err = d.Activate(ctx, req)
	}
	if result != nil {
		if perr := printResult(cmd, result, err); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

// recordPreviews audits a dry run, one event per driver.
func recordPreviews(req *service.Request, op driver.Op, previews []driver.DriverPreview) {
	serviceID := ids.CanonicalServiceID(req.ServiceID)
	for _, p := range previews {
		ev := audit.NewEvent(permChecker.CurrentUser(), p.Device, string(op)).
			WithService(serviceID).
			WithDriver(p.Name, driver.Initialized.String()).
			WithChanges(util.SplitLines(p.Changes)).
			WithExecuteMode(false).
			WithSuccess()
		if err := audit.Log(ev); err != nil {
			util.Warnf("audit: %v", err)
		}
	}
}

func printPreviews(cmd *cobra.Command, req *service.Request, op driver.Op, previews []driver.DriverPreview) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		json.NewEncoder(out).Encode(previews)
		return
	}

	fmt.Fprintf(out, "%s %s (%s, %d endpoint(s))\n", cli.Bold(string(op)), req.ServiceID, req.Type, len(req.Endpoints))
	for _, p := range previews {
		fmt.Fprintf(out, "\n%s\n", cli.Bold(p.Name))
		if p.Changes == "" {
			fmt.Fprintln(out, cli.Dim("  (no changes)"))
			continue
		}
		fmt.Fprint(out, cli.Indent(p.Changes, "  "))
	}
	printDryRunNotice(cmd)
}

// resultView is the printable form of a driver.Result.
type resultView struct {
	RequestID string       `json:"request_id"`
	ServiceID string       `json:"service_id"`
	Operation string       `json:"operation"`
	Drivers   []driverView `json:"drivers"`
	Duration  string       `json:"duration"`
	Error     string       `json:"error,omitempty"`
}

type driverView struct {
	Name     string `json:"name"`
	Device   string `json:"device"`
	Priority int    `json:"priority"`
	State    string `json:"state"`
}

func printResult(cmd *cobra.Command, result *driver.Result, runErr error) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		v := resultView{
			RequestID: result.RequestID,
			ServiceID: result.ServiceID,
			Operation: string(result.Op),
			Duration:  result.Duration.String(),
		}
		for _, st := range result.Drivers {
			v.Drivers = append(v.Drivers, driverView{st.Name, st.Device, st.Priority, st.State.String()})
		}
		if runErr != nil {
			v.Error = runErr.Error()
		}
		return json.NewEncoder(out).Encode(v)
	}

	t := cli.NewTableTo(out, "DRIVER", "DEVICE", "PRIORITY", "STATE")
	for _, st := range result.Drivers {
		t.Row(st.Name, st.Device, strconv.Itoa(st.Priority), cli.State(st.State.String()))
	}
	t.Flush()

	var rbErr *util.RollbackError
	switch {
	case runErr == nil:
		fmt.Fprintln(out, "\n"+cli.Green(fmt.Sprintf("%s committed (request %s).", result.Op, result.RequestID)))
	case errors.As(runErr, &rbErr):
		fmt.Fprintln(out, "\n"+cli.Red("Rollback incomplete; devices may hold partial configuration."))
	case rolledBack(result):
		fmt.Fprintln(out, "\n"+cli.Yellow("Changed devices were rolled back."))
	default:
		fmt.Fprintln(out, "\n"+cli.Yellow("No device was changed."))
	}
	return nil
}

func rolledBack(result *driver.Result) bool {
	for _, st := range result.Drivers {
		if st.State == driver.RolledBack {
			return true
		}
	}
	return false
}
