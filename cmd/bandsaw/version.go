package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/kant-ai/bandsaw"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of bandsaw",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bandsaw version %s %s/%s\n",
				strings.TrimSpace(bandsaw.Version), runtime.GOOS, runtime.GOARCH)
		},
	}
}
