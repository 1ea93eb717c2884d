package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TestFlowLabs/testlink-sub002/internal/config"
)

const configHeader = `# testlink configuration.
# Directories are relative to this file. PSR-4 prefixes from composer.json are
# read automatically; list extra ones under "namespaces".
`

var configExtensions = []string{".yaml", ".yml", ".json", ".toml"}

func newInitCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var dryRun, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a testlink.yaml for the project",
		Long: `init writes testlink.yaml in the project root with the default settings,
using whichever of app/, src/ and lib/ exist as production directories.
An existing config file is left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(opts.path, dryRun, force, stdout, stderr)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the config instead of writing it")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runInit(root string, dryRun, force bool, stdout, stderr io.Writer) error {
	data, err := generateConfig(root)
	if err != nil {
		return err
	}
	if dryRun {
		_, err := stdout.Write(data)
		return err
	}

	if existing := existingConfig(root); existing != "" && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", existing)
	}

	path := filepath.Join(root, config.FileName+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)
	return nil
}

// generateConfig renders the default configuration, with production
// directories narrowed to the ones present under root.
func generateConfig(root string) ([]byte, error) {
	cfg := config.DefaultConfig()
	var found []string
	for _, dir := range cfg.Production {
		if info, err := os.Stat(filepath.Join(root, dir)); err == nil && info.IsDir() {
			found = append(found, dir)
		}
	}
	if len(found) > 0 {
		cfg.Production = found
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// existingConfig returns the name of a config file already in root, or "".
func existingConfig(root string) string {
	for _, ext := range configExtensions {
		name := config.FileName + ext
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return name
		}
	}
	return ""
}
