package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/bootstrap"
	"github.com/ricirt/plinko-sync/internal/config"
	"github.com/ricirt/plinko-sync/internal/queue"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logger *zap.Logger
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag, logger: zap.NewNop()}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			path = os.Getenv("PLINKO_CONFIG")
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			c.configErr = err
			return
		}
		if cfg.LogLevel == "debug" {
			if l, err := bootstrap.NewLogger("debug"); err == nil {
				c.logger = l
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withQueue opens the configured queue for fn. Mutating commands take the
// driver lock first so they never race a running daemon.
func (c *commandContext) withQueue(mutating bool, fn func(cfg *config.Config, q *queue.Queue) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	if mutating {
		lock, err := bootstrap.AcquireLock(cfg.SlotDir)
		if errors.Is(err, bootstrap.ErrLocked) {
			return fmt.Errorf("%w: stop the sync daemon before changing the queue", err)
		}
		if err != nil {
			return err
		}
		defer lock.Unlock() //nolint:errcheck
	}

	q, s, err := bootstrap.OpenQueue(cfg, c.logger, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(cfg, q)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
