package cli

import (
	"github.com/cbsinteractive/conversion-client/job"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job and the state of each of its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := ctl.LookupSession(cmd.Context(), job.ID(args[0]))
		if perr := printSnapshot(cmd.OutOrStdout(), ctl.Snapshot()); err == nil {
			err = perr
		}
		return err
	},
}
