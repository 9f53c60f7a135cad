package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/image-localizer/internal/cli"
	"github.com/fpang/image-localizer/internal/config"
	"github.com/fpang/image-localizer/internal/logging"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and API credentials",
	Long:  "Loads the configuration and sends one small probe request to the selected provider.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		services, err := cli.NewServices(ctx, cfg)
		if err != nil {
			return err
		}
		cli.CheckServices(ctx, services)
		fmt.Fprintf(cmd.OutOrStdout(), "%s credentials OK\n", services.Provider)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFlag
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			var err error
			if path, err = config.DefaultConfigPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.CreateSample(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
