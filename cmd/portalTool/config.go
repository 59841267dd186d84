package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

var ConfigFile = "config.json"

// PortalServer is a locally configured portal endpoint.
type PortalServer struct {
	Alias string `json:"alias"`
	Host  string `json:"host"`
	// Token is the bearer token used against the server
	Token string `json:"token,omitempty"`
}

type ConfigData struct {
	Selected string                  `json:"selected,omitempty"`
	Servers  map[string]PortalServer `json:"servers"`
}

func configPath(g *Globals) (string, error) {
	if g.Config != "" {
		return g.Config, nil
	}
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(usr.HomeDir, ".portalTool", ConfigFile), nil
}

func (c *ConfigData) Load(g *Globals) error {
	path, err := configPath(g)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return err
	}
	if c.Servers == nil {
		c.Servers = map[string]PortalServer{}
	}
	return nil
}

func (c *ConfigData) Save(g *Globals) error {
	path, err := configPath(g)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

// GetServer returns the selected server, or the single defined one.
func (c *ConfigData) GetServer() (*PortalServer, error) {
	if c.Selected != "" {
		if server, ok := c.Servers[c.Selected]; ok {
			return &server, nil
		}
	}
	if len(c.Servers) == 1 {
		for _, server := range c.Servers {
			return &server, nil
		}
	}
	return nil, errors.New("no server selected, use: add or select")
}

func normalizeHost(host string) string {
	if !strings.Contains(strings.ToUpper(host), "HTTP") {
		return "http://" + host
	}
	return host
}

func (c *ConfigData) Print() {
	if len(c.Servers) == 0 {
		fmt.Println("No servers configured.")
		return
	}
	for alias, server := range c.Servers {
		marker := " "
		if alias == c.Selected {
			marker = "*"
		}
		fmt.Printf("%s %s\t%s\n", marker, alias, server.Host)
	}
}
