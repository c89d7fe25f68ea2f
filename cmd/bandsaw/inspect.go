package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/kant-ai/bandsaw/pkg/serialization"
	"github.com/kant-ai/bandsaw/pkg/session"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Show the contents of a session snapshot",
		Long: `Reads a JSON or YAML session snapshot and prints a summary. With --format
the snapshot is written again in the given format.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			snap, err := session.ReadSnapshot(f, nil)
			if err != nil {
				return err
			}
			if format != "" {
				ser, err := serialization.ForName(format)
				if err != nil {
					return err
				}
				return ser.Serialize(cmd.OutOrStdout(), snap)
			}
			return printSummary(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "re-encode the snapshot as json or yaml")
	return cmd
}

func printSummary(out io.Writer, snap *session.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	row := func(k string, v any) { fmt.Fprintf(w, "%s\t%v\n", k, v) }

	row("version", snap.Version)
	row("configuration", snap.Configuration)
	row("advice chain", snap.AdviceChain)
	row("run id", snap.RunID)
	row("task", snap.Task["name"])
	row("execution", snap.Execution.ID)
	row("arguments", len(snap.Execution.Args))
	for _, k := range []string{"before_called", "task_called", "after_called", "finished"} {
		row(k, snap.Moderator[k])
	}
	switch {
	case snap.Result == nil:
		row("result", "<none>")
	case snap.Result.Succeeded():
		row("result", snap.Result.Value)
	default:
		row("failure", fmt.Sprintf("%s: %s", snap.Result.Failure.Type, snap.Result.Failure.Message))
	}
	keys := snap.Context.Keys()
	sort.Strings(keys)
	row("context keys", keys)
	return w.Flush()
}
