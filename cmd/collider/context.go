package main

import (
	"fmt"
	"strings"
	"sync"

	"collider/internal/api"
	"collider/internal/config"
)

type commandContext struct {
	addrFlag   *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addrFlag, configFlag *string) *commandContext {
	return &commandContext{
		addrFlag:   addrFlag,
		configFlag: configFlag,
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
		c.config = cfg
	})
	return c.config, c.configErr
}

// daemonAddr resolves the API address: the --addr flag wins, otherwise the
// configured bind address is used.
func (c *commandContext) daemonAddr() (string, error) {
	if c.addrFlag != nil {
		if addr := strings.TrimSpace(*c.addrFlag); addr != "" {
			return addr, nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Paths.APIBind, nil
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	addr, err := c.daemonAddr()
	if err != nil {
		return err
	}
	client, err := api.NewClient(addr)
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return wrapDaemonError(err, addr)
	}
	return nil
}

func wrapDaemonError(err error, addr string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("connect to daemon at %s: is colliderd running?", addr)
	}
	return err
}
