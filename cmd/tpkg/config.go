// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tpkg/tpkg/internal/config"
)

// newConfigCommand creates the `tpkg config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tpkg configuration",
		Long: `Manage tpkg configuration.

Configuration is stored in:
  - Linux: ~/.config/tpkg/config.cue
  - macOS: ~/Library/Application Support/tpkg/config.cue
  - Windows: %APPDATA%\tpkg\config.cue

Environment variables (PACKAGE_output_folder, PACKAGE_search_path,
LY_PACKAGE_SERVER_URLS, AWS_PROFILE, ...) override file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd, app, format)
		},
	}
	show.Flags().StringVar(&format, "format", formatText, "output format: text, json, yaml or cue")
	cfgCmd.AddCommand(show)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			target := filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt)
			if _, err := os.Stat(target); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s already exists\n", infoIcon, target)
				return nil
			}
			path, err := config.Save(app.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", successIcon, path)
			return nil
		},
	})

	return cfgCmd
}

func showConfig(cmd *cobra.Command, app *App, format string) error {
	out := cmd.OutOrStdout()
	cfg := app.cfg

	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case formatYAML:
		return yaml.NewEncoder(out).Encode(cfg)
	case "cue":
		_, err := fmt.Fprint(out, config.GenerateCUE(cfg))
		return err
	case formatText:
	default:
		return fmt.Errorf("%w: %q", errBadFormat, format)
	}

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	source := SubtitleStyle.Render("(using defaults)")
	if app.cfgPath != "" {
		source = app.cfgPath
	}
	fmt.Fprintf(out, "%s: %s\n\n", CmdStyle.Render("Config file"), source)

	row := func(key string, val any) {
		fmt.Fprintf(out, "%s: %s\n", CmdStyle.Render(key), SuccessStyle.Render(fmt.Sprint(val)))
	}
	row("output_folder", cfg.OutputFolder)
	row("search_path", cfg.SearchPath)
	row("server_urls", cfg.ServerURLs)
	row("bucket_name", cfg.BucketName)
	row("aws_profile", cfg.AWSProfile)
	row("s3_endpoint", cfg.S3Endpoint)
	row("s3_region", cfg.S3Region)
	row("s3_insecure", cfg.S3Insecure)
	row("spdx_url", cfg.SPDXURL)
	row("skip_self_check", cfg.SkipSelfCheck)
	row("build_interpreter", cfg.BuildInterpreter)
	row("log_level", cfg.LogLevel)
	row("temp_dir", cfg.TempDir)
	return nil
}
