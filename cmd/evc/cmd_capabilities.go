package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/evc/pkg/auth"
	"github.com/newtron-network/evc/pkg/cli"
	"github.com/newtron-network/evc/pkg/evc/capability"
)

var capabilitiesCmd = &cobra.Command{
	Use:     "capabilities [node...]",
	Aliases: []string{"caps"},
	Short:   "Show node capabilities and the driver family each node selects",
	Long: `Evaluate the capability predicates for inventory nodes.

Without arguments every node is shown.

Examples:
  evc capabilities
  evc capabilities pe1 csr1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkPermission(auth.PermCapabilityView, auth.NewContext()); err != nil {
			return err
		}
		nodes := args
		if len(nodes) == 0 {
			nodes = inv.NodeNames()
		}

		reports := make([]nodeCapabilities, 0, len(nodes))
		for _, name := range nodes {
			r, err := evaluateNode(cmd.Context(), name)
			if err != nil {
				return err
			}
			reports = append(reports, r)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return json.NewEncoder(out).Encode(reports)
		}

		for i, r := range reports {
			if i > 0 {
				fmt.Fprintln(out)
			}
			family := r.Family
			if family == "" {
				family = cli.Red("(none)")
			}
			fmt.Fprintf(out, "%s  driver: %s\n", cli.Bold(r.Node), family)
			if len(r.Capabilities) > 0 {
				fmt.Fprintf(out, "  advertises: %s\n", strings.Join(r.Capabilities, ", "))
			}
			if len(r.Topologies) > 0 {
				fmt.Fprintf(out, "  topologies: %s\n", strings.Join(r.Topologies, ", "))
			}
			t := cli.NewTableTo(out, "PREDICATE", "HOLDS").WithPrefix("  ")
			for _, name := range capability.DefaultRegistry().Names() {
				t.Row(name, cli.YesNo(r.Predicates[name]))
			}
			t.Flush()
		}
		return nil
	},
}

type nodeCapabilities struct {
	Node         string          `json:"node"`
	Capabilities []string        `json:"capabilities"`
	Topologies   []string        `json:"topologies"`
	Predicates   map[string]bool `json:"predicates"`
	Family       string          `json:"family,omitempty"`
}

// evaluateNode runs every predicate against a node and picks the driver
// family the dispatcher would select for it.
func evaluateNode(ctx context.Context, name string) (nodeCapabilities, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	snap, err := inv.Snapshot(ctx, name)
	if err != nil {
		return nodeCapabilities{}, err
	}
	registry := capability.DefaultRegistry()
	r := nodeCapabilities{
		Node:         name,
		Capabilities: snap.Capabilities,
		Topologies:   snap.Topologies,
		Predicates:   registry.Evaluate(snap),
	}
	for _, b := range builders(nil, nil) {
		names, mode := b.Requires()
		ok, err := registry.Supports(snap, names, mode)
		if err != nil {
			return r, err
		}
		if ok {
			r.Family = b.Family()
			break
		}
	}
	return r, nil
}
