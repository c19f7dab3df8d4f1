package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelgen/internal/config"
	"reelgen/internal/logging"
	"reelgen/internal/manager"
	"reelgen/internal/task"
	"reelgen/internal/workdir"
)

// commandContext lazily loads configuration and opens the task store so
// commands that never touch the store (config init, help) stay cheap.
type commandContext struct {
	configFlag *string

	cfg   *config.Config
	store *task.Store
	mgr   *manager.Manager
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return *c.configFlag
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(c.flagPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureManager() (*manager.Manager, error) {
	if c.mgr != nil {
		return c.mgr, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := task.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	c.store = store
	c.mgr = manager.New(cfg, store, workdir.NewManager(cfg), logging.NewNop())
	return c.mgr, nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "reelgen",
		Short:         "Create and manage short-video generation tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newCreateCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newRetryCommand(ctx))
	rootCmd.AddCommand(newClearCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
