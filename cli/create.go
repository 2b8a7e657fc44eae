package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	createFormat string
	createFiles  int
)

var createCmd = &cobra.Command{
	Use:   "create --format <format> [file...]",
	Short: "Create a conversion job and upload its input files",
	Long: `Create a conversion job converting to the given format. Every file
given is uploaded as one input of the job, in order. Use --files to
reserve more inputs than files given; they can be uploaded later.

Examples:
  conversion-client create --format escher model.sbml
  conversion-client create --format sbgn --files 3 a.sbml`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createFormat, "format", "f", "", "output format: sbml, sbgn or escher")
	createCmd.Flags().IntVarP(&createFiles, "files", "n", 0, "number of input files (default: number of files given)")
	_ = createCmd.MarkFlagRequired("format")
}

func runCreate(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(createFormat)
	if err != nil {
		return err
	}
	count := createFiles
	if count < len(args) {
		count = len(args)
	}
	if count < 1 {
		return errors.New("a job needs at least one file; give files or --files")
	}

	for _, path := range args {
		p, err := readPayload(path, "")
		if err != nil {
			return err
		}
		n, err := ctl.AddLocalSlot()
		if err != nil {
			return err
		}
		if err = ctl.AttachLocal(n, p); err != nil {
			return err
		}
	}

	err = ctl.CreateSession(cmd.Context(), format, count)
	if perr := printSnapshot(cmd.OutOrStdout(), ctl.Snapshot()); err == nil {
		err = perr
	}
	return err
}
