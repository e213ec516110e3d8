package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/target/marketpulse/internal/client"
)

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string
	ownerFlag  *string
	jsonFlag   *bool

	once     sync.Once
	settings settings
	err      error
}

func (c *commandContext) ensureSettings() (settings, error) {
	c.once.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		explicit := path != ""
		if !explicit {
			path = defaultSettingsPath()
		}
		s, err := loadSettings(path, explicit)
		if err != nil {
			c.err = err
			return
		}
		s.applyEnv()
		if v := strings.TrimSpace(*c.serverFlag); v != "" {
			s.Server = v
		}
		if v := strings.TrimSpace(*c.tokenFlag); v != "" {
			s.Token = v
		}
		if v := strings.TrimSpace(*c.ownerFlag); v != "" {
			s.Owner = v
		}
		c.settings = s
	})
	return c.settings, c.err
}

func (c *commandContext) client() (*client.Client, error) {
	s, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	return client.New(client.Config{
		BaseURL:     s.Server,
		Token:       s.Token,
		Owner:       s.Owner,
		OwnerHeader: s.OwnerHeader,
	})
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	return fn(cl)
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func shouldSkipSettings(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipSettings"] == "true" {
			return true
		}
	}
	return false
}
