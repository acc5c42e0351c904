package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30000, // 30 seconds
		FollowRedirects: BoolPtr(true),
		MaxRedirects:    10,
		ValidateSSL:     BoolPtr(true),
		RecordHistory:   BoolPtr(true),
		Debug:           BoolPtr(false),
		NoColor:         BoolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Timeout == defaults.Timeout &&
		c.GetFollowRedirects() == defaults.GetFollowRedirects() &&
		c.MaxRedirects == defaults.MaxRedirects &&
		c.GetValidateSSL() == defaults.GetValidateSSL() &&
		c.Proxy == defaults.Proxy &&
		len(c.Headers) == 0 &&
		c.HistoryPath == "" &&
		c.SessionPath == "" &&
		c.LogPath == "" &&
		c.GetRecordHistory() == defaults.GetRecordHistory() &&
		c.MaxConcurrent == 0 &&
		c.Rate == 0 &&
		c.Burst == 0 &&
		c.GetDebug() == defaults.GetDebug() &&
		c.GetNoColor() == defaults.GetNoColor()
}
