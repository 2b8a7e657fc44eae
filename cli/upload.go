package cli

import (
	"github.com/cbsinteractive/conversion-client/job"
	"github.com/spf13/cobra"
)

var uploadType string

var uploadCmd = &cobra.Command{
	Use:   "upload <job-id> <n> <file>",
	Short: "Upload a file as input n of a job",
	Long: `Upload a file as input n of a job. The upload is only sent when the
server says input n can still be uploaded.

Examples:
  conversion-client upload 42 0 model.sbml
  conversion-client upload 42 1 map.json --type escher`,
	Args: cobra.ExactArgs(3),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadType, "type", "t", "", "content type to upload as (default: guessed from the file name)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	n, err := parseIndex(args[1])
	if err != nil {
		return err
	}
	p, err := readPayload(args[2], uploadType)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err = ctl.LookupSession(ctx, job.ID(args[0])); err == nil {
		err = ctl.RequestUpload(ctx, n, p)
	}
	if perr := printSnapshot(cmd.OutOrStdout(), ctl.Snapshot()); err == nil {
		err = perr
	}
	return err
}
