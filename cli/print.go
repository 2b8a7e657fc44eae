package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cbsinteractive/conversion-client/session"
)

func printSnapshot(w io.Writer, s session.Snapshot) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	writeSnapshot(w, s)
	return nil
}

func writeSnapshot(w io.Writer, s session.Snapshot) {
	if s.JobID == "" {
		fmt.Fprintln(w, "No job")
	} else {
		fmt.Fprintf(w, "Job: %s\n", s.JobID)
		fmt.Fprintf(w, "  Status: %s\n", s.Label)
		if s.OutputFormat != "" {
			fmt.Fprintf(w, "  Output: %s\n", s.OutputFormat)
		}
	}

	if len(s.Slots) > 0 {
		fmt.Fprintf(w, "\n%-5s %-14s %-12s %s\n", "FILE", "INPUT", "OUTPUT", "ACTIONS")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, v := range s.Slots {
			fmt.Fprintf(w, "%-5d %-14s %-12s %s\n", v.Index, v.Input, v.Output, strings.Join(v.Actions.List(), ", "))
		}
	}

	if s.Notice != nil {
		fmt.Fprintf(w, "\n%s: %s\n", s.Notice.Level, s.Notice.Text)
	}
}
