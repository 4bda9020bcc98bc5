package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"avatarcast/internal/api"
	"avatarcast/internal/config"
	"avatarcast/internal/logging"
	"avatarcast/internal/workflow"
)

const daemonProbeTimeout = 2 * time.Second

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, c.logLevel())
}

// daemonClient returns a client for a daemon that answered a status probe,
// or nil when none is reachable.
func (c *commandContext) daemonClient(ctx context.Context) (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil {
		return nil, fmt.Errorf("daemon api address: %w", err)
	}
	if client == nil {
		return nil, nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()
	if _, err := client.Status(probeCtx); err != nil {
		if api.IsAPIUnavailable(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("query daemon: %w", err)
	}
	return client, nil
}

// openStack assembles the in-process runtime with finished jobs restored.
func (c *commandContext) openStack(ctx context.Context) (*workflow.Stack, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	stack, err := workflow.NewStack(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := stack.Restore(ctx, false); err != nil {
		_ = stack.Close()
		return nil, err
	}
	return stack, nil
}

// withBackend runs fn against the daemon when one is reachable and against
// an in-process stack otherwise.
func (c *commandContext) withBackend(ctx context.Context, fn func(backend) error) error {
	client, err := c.daemonClient(ctx)
	if err != nil {
		return err
	}
	if client != nil {
		return fn(&daemonBackend{client: client})
	}
	stack, err := c.openStack(ctx)
	if err != nil {
		return err
	}
	local := &localBackend{stack: stack}
	defer local.Close()
	return fn(local)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
