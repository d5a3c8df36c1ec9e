package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/evc/pkg/audit"
	"github.com/newtron-network/evc/pkg/auth"
	"github.com/newtron-network/evc/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View audit logs of service activations and deactivations.

Every driver of an executed request is logged with:
  - Timestamp and user
  - Service and request ID
  - Device and driver
  - Final lifecycle state and error, if any

Examples:
  evc audit list --service svc-42
  evc audit list --last 24h --failures
  evc audit list --request 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
}

var (
	auditDevice   string
	auditUser     string
	auditService  string
	auditRequest  string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkPermission(auth.PermAuditView, auth.NewContext().WithService(auditService)); err != nil {
			return err
		}

		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			Service:     auditService,
			RequestID:   auditRequest,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		// Parse --last duration
		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return json.NewEncoder(out).Encode(events)
		}

		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events found")
			return nil
		}

		t := cli.NewTableTo(out, "TIMESTAMP", "USER", "OPERATION", "SERVICE", "DRIVER", "STATE", "STATUS")
		for _, event := range events {
			status := cli.Green("ok")
			if !event.Success {
				status = cli.Red("failed")
			}
			if event.DryRun {
				status = cli.Yellow("dry-run")
			}
			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				event.Operation,
				event.Service,
				event.Driver,
				cli.State(event.State),
				status,
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditService, "service", "", "Filter by service ID")
	auditListCmd.Flags().StringVar(&auditRequest, "request", "", "Filter by request ID")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}
