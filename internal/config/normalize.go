package config

import "strings"

// normalize trims string fields and expands filesystem paths so the rest of
// the program never re-checks them.
func (c *Config) normalize() error {
	c.Service.BaseURL = strings.TrimRight(strings.TrimSpace(c.Service.BaseURL), "/")
	c.Service.APIKey = strings.TrimSpace(c.Service.APIKey)
	c.Service.ProgramID = strings.TrimSpace(c.Service.ProgramID)

	c.Token.LandingPath = strings.TrimSpace(c.Token.LandingPath)
	if c.Token.LandingPath == "" {
		c.Token.LandingPath = defaultTokenLandingPath
	}
	if !strings.HasPrefix(c.Token.LandingPath, "/") {
		c.Token.LandingPath = "/" + c.Token.LandingPath
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)

	logDir, err := expandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = logDir

	dataDir, err := expandPath(c.Paths.DataDir)
	if err != nil {
		return err
	}
	c.Paths.DataDir = dataDir

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	return nil
}
