// SPDX-License-Identifier: MIT
package cmd

import (
	"beatsync/internal/audio"
	"beatsync/internal/tui"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	var interactive bool

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive {
				if err := audio.Initialize(); err != nil {
					return err
				}
				defer audio.Terminate()
				return audio.ListDevices(cmd.OutOrStdout())
			}

			sel, ok, err := tui.StartDeviceListUI()
			if err != nil || !ok {
				return err
			}
			printf(cmd, "Selected [%d] %s at %.0f Hz\nRun with: --device %d --sample-rate %.0f\n",
				sel.Device.ID, sel.Device.Name, sel.SampleRate, sel.Device.ID, sel.SampleRate)
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick a device interactively")
	return listCmd
}
