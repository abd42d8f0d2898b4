package config

// DefaultSession is the session name used when none is given.
const DefaultSession = "default"

// CLIConfig is the configuration for sandstore-cli.
type CLIConfig struct {
	DefaultServer string `yaml:"default_server"`
	DefaultOutput string `yaml:"default_output"` // table, json, yaml

	// Saved sessions by name
	Sessions map[string]Session `yaml:"sessions"`

	// Session used when --session is not given
	CurrentSession string `yaml:"current_session"`
}

// Session stores a saved session.
type Session struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token"`
	ResID  string `yaml:"res_id"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultServer: "localhost:5080",
		DefaultOutput: "table",
		Sessions:      make(map[string]Session),
	}
}

// Current returns the named session, or the current one when name is empty.
// The returned session falls back to the default server.
func (c *CLIConfig) Current(name string) (Session, bool) {
	if name == "" {
		name = c.CurrentSession
	}
	s, ok := c.Sessions[name]
	if s.Server == "" {
		s.Server = c.DefaultServer
	}
	return s, ok
}

// Put saves a session under name and makes it current.
func (c *CLIConfig) Put(name string, s Session) {
	if name == "" {
		name = DefaultSession
	}
	if c.Sessions == nil {
		c.Sessions = make(map[string]Session)
	}
	c.Sessions[name] = s
	c.CurrentSession = name
}

// Remove deletes a saved session. Removing the current session clears it.
func (c *CLIConfig) Remove(name string) bool {
	if _, ok := c.Sessions[name]; !ok {
		return false
	}
	delete(c.Sessions, name)
	if c.CurrentSession == name {
		c.CurrentSession = ""
	}
	return true
}
