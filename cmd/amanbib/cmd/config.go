package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanbib/configs"
	"github.com/Aman-CERP/amanbib/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage amanbib configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/amanbib/config.yaml)
  3. Project config (.amanbib.yaml next to the library)
  4. File given with --config
  5. Environment variables (AMANBIB_*)`,
		Example: `  # Create user config from template
  amanbib config init

  # Create a project config next to the library
  amanbib config init --project --library refs.yaml

  # Show effective configuration
  amanbib config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		project bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from a template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, template := config.GetUserConfigPath(), configs.UserConfigTemplate
			if project {
				dir, err := libraryDir()
				if err != nil {
					return err
				}
				path, template = config.ProjectConfigPath(dir), configs.ProjectConfigTemplate
			}
			return runConfigInit(cmd, path, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Create .amanbib.yaml next to the library instead of the user config")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path, template string, force bool) error {
	out := newOutput(cmd)

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("Configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		out.Status("💡", "Use --force to overwrite it with the template")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Successf("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Status("💡", "Run 'amanbib config show' to verify")
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration that applies to the library after merging all sources.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := libraryDir()
			if err != nil {
				return err
			}
			cfg, err := config.Load(dir, configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := libraryDir()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "project: %s\n", config.ProjectConfigPath(dir))
			return nil
		},
	}
}

// libraryDir returns the directory of the library selected by --library.
// The library file itself need not exist.
func libraryDir() (string, error) {
	abs, err := filepath.Abs(libraryPath)
	if err != nil {
		return "", fmt.Errorf("invalid library path: %w", err)
	}
	return filepath.Dir(abs), nil
}
