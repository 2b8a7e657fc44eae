package cli

import (
	"github.com/cbsinteractive/conversion-client/job"
	"github.com/spf13/cobra"
)

var downloadOutput bool

var downloadCmd = &cobra.Command{
	Use:   "download <job-id> <n>",
	Short: "Download input n of a job, or its converted output",
	Long: `Download input n of a job, or with --output the file it was converted
to. Files are saved as <job-id>_<n>.<ext>.

Examples:
  conversion-client download 42 0
  conversion-client download 42 0 --output --save-dir out/`,
	Args: cobra.ExactArgs(2),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().BoolVarP(&downloadOutput, "output", "o", false, "download the converted output instead of the input")
}

func runDownload(cmd *cobra.Command, args []string) error {
	n, err := parseIndex(args[1])
	if err != nil {
		return err
	}
	which := job.Input
	if downloadOutput {
		which = job.Output
	}

	ctx := cmd.Context()
	if err = ctl.LookupSession(ctx, job.ID(args[0])); err == nil {
		err = ctl.RequestDownload(ctx, n, which)
	}
	if perr := printSnapshot(cmd.OutOrStdout(), ctl.Snapshot()); err == nil {
		err = perr
	}
	return err
}
