package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kant-ai/bandsaw/internal/config"
	"github.com/spf13/cobra"
)

const defaultYAML = `# bandsaw settings
# Priority: CLI flag > BANDSAW_* environment > this file > default.

log_level:  "info"    # debug | info | warn | error
serializer: "json"    # json | yaml

# advices of the default chain, outermost first: cache | goroutine | remote
chain: [cache]
# timestamps | metrics | tracing
extensions: [timestamps]

cache:
  dir: ".bandsaw/cache"
  # redis_addr: "localhost:6379"   # use Redis instead of files
  # ttl: "24h"
  # encryption_key: ""              # base64, 32 bytes (AES-256)
  # fallback_keys: []               # previous keys, tried on read

transport: "ssh"      # ssh | http | https | local
# remote_name: "gpu"
# remotes:
#   gpu:
#     host: "gpu.example.com"
#     port: 22
#     user: "ml"
#     key_file: "~/.ssh/id_ed25519"
#     directory: "/scratch/bandsaw"

agent:
  addr: ":8750"
  root: ".bandsaw/agent"
`

func newInitCmd(cfgFile *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write a default bandsaw.yaml.

If --config is given the file is written to that path, otherwise to the
working directory. Fails if the file already exists unless --force is passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest := *cfgFile
			if dest == "" {
				dest = config.FileName + ".yaml"
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}
			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", dest, err)
				}
			}
			if err := os.WriteFile(dest, []byte(defaultYAML), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", dest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}
