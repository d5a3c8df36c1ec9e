package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/evc/pkg/evc/config"
	"github.com/newtron-network/evc/pkg/util"
)

var renderParams config.CLIParams
var renderRemove bool

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the CLI stanza for a service instance",
	Long: `Render the CLI text a CLI device receives, without contacting any device.

Examples:
  evc render --interface Gi4 --instance 1 --vlan 100 --peer 10.255.0.2 --vcid 4711
  evc render --interface Gi4 --instance 1 --remove --restore-interface`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := renderParams
		if p.Interface != "" {
			p.Interface = util.InterfaceName(p.Interface)
		}

		var text string
		var err error
		if renderRemove {
			text, err = config.RenderServiceInstanceRemoval(p)
		} else {
			text, err = config.RenderServiceInstance(p)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderParams.Interface, "interface", "", "Interface name (short forms accepted)")
	renderCmd.Flags().IntVar(&renderParams.ServiceInstance, "instance", 0, "Service instance number")
	renderCmd.Flags().IntVar(&renderParams.VLAN, "vlan", 0, "dot1q VLAN, 0 for untagged")
	renderCmd.Flags().StringVar(&renderParams.PeerIP, "peer", "", "Peer loopback address")
	renderCmd.Flags().IntVar(&renderParams.VCID, "vcid", 0, "Virtual circuit ID")
	renderCmd.Flags().BoolVar(&renderParams.RestoreInterface, "restore-interface", false, "Also reset MTU and shut the interface on removal")
	renderCmd.Flags().BoolVar(&renderRemove, "remove", false, "Render the removal stanza")
}
