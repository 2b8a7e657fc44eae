package cli

import (
	"time"

	"github.com/cbsinteractive/conversion-client/job"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Refresh a job until it completes or fails",
	Long: `Refresh a job every interval and print it whenever it changes, until
the job completes or fails.

Examples:
  conversion-client watch 42
  conversion-client watch 42 --interval 1s`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0, "time between refreshes (default $CONVERT_POLL_INTERVAL or 5s)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	interval := cfg.PollInterval
	if cmd.Flags().Changed("interval") {
		interval = watchInterval
	}
	if interval <= 0 {
		return errors.Errorf("interval %v: must be positive", interval)
	}

	if err := ctl.LookupSession(ctx, job.ID(args[0])); err != nil {
		_ = printSnapshot(cmd.OutOrStdout(), ctl.Snapshot())
		return err
	}

	var last string
	show := func() error {
		s := ctl.Snapshot()
		key := s.Label
		for _, v := range s.Slots {
			key += "|" + v.Input.String() + v.Output.String() + v.Actions.String()
		}
		if key == last {
			return nil
		}
		last = key
		return printSnapshot(cmd.OutOrStdout(), s)
	}
	if err := show(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- ctl.Watch(ctx, interval) }()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case err := <-done:
			if perr := show(); err == nil {
				err = perr
			}
			return err
		case <-t.C:
			if err := show(); err != nil {
				return err
			}
		}
	}
}
