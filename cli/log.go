package cli

import (
	"fmt"

	"github.com/cbsinteractive/conversion-client/job"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log <job-id>",
	Short: "Print a job's conversion log and save it as <job-id>_log.txt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ctl.LookupSession(ctx, job.ID(args[0])); err != nil {
			_ = printSnapshot(cmd.OutOrStdout(), ctl.Snapshot())
			return err
		}
		text, err := ctl.FetchLog(ctx)
		if err != nil {
			return err
		}
		if text == "" {
			if n := ctl.Snapshot().Notice; n != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), n.Text)
			}
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}
