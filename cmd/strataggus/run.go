package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/strataggus/strataggus/internal/engineconfig"
	"github.com/strataggus/strataggus/internal/enginehost"
	"github.com/strataggus/strataggus/internal/enginelog"
	"github.com/strataggus/strataggus/internal/script"
)

func newRunCommand(dataPath *string) *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <script.lua>",
		Short: "run a script under a fresh sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(args[0], configPath, timeout, *dataPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to engine configuration YAML")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "script timeout, overriding the configuration file")
	return cmd
}

func runScript(scriptPath, configPath string, timeout time.Duration, dataPath string) error {
	scriptPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return fmt.Errorf("resolving script path: %w", err)
	}

	logger, err := enginelog.NewDevelopment()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	host, err := enginehost.NewDetector().Detect(context.Background())
	if err != nil {
		logger.Warn("host detection incomplete", "error", err.Error())
	}
	if host != nil {
		logger.Info("host detected", "os", host.OS, "arch", host.Arch, "total_memory", host.TotalMemory)
	}

	cfg := engineconfig.Default()
	if configPath != "" {
		cfg, err = engineconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
	}
	if dataPath != "" {
		cfg.DataPath = dataPath
		logger.Info("using given data path", "path", dataPath)
	}

	limit := cfg.MemoryLimitBytes
	if limit == 0 && host != nil {
		limit = host.DefaultScriptMemoryLimit()
	}

	rt := script.NewRuntimeWithLogger(limit, logger)
	defer rt.Close()

	sb := script.NewSandboxWithLogger(rt, cfg.ScriptPreset(), logger)
	if timeout <= 0 {
		timeout = cfg.Timeout()
	}
	sb.SetTimeout(timeout)

	if err := sb.AllowScriptPath(filepath.Dir(scriptPath)); err != nil {
		return fmt.Errorf("registering script path: %w", err)
	}
	for _, root := range cfg.AllowedRoots {
		if err := sb.AllowScriptPath(root); err != nil {
			return fmt.Errorf("registering allowed root %q: %w", root, err)
		}
	}

	result := sb.RunFile(scriptPath)
	if !result.Valid() {
		return fmt.Errorf("script failed: %w", result.Err())
	}
	logger.Info("script completed", "path", scriptPath)
	return nil
}
