package config

const (
	defaultServiceBaseURL        = "https://batch.1key.me"
	defaultServiceRequestTimeout = 300
	defaultServiceMaxRetries     = 2
	defaultServiceRetryDelay     = 1
	defaultTokenTTL              = 300
	defaultTokenLandingPath      = "/"
	defaultPollInterval          = 3
	defaultPollMaxAttempts       = 100
	defaultBatchMaxSize          = 5
	defaultRetentionMinutes      = 60
	defaultLogDir                = "~/.local/share/veribatch/logs"
	defaultDataDir               = "~/.local/share/veribatch"
	defaultAPIBind               = "127.0.0.1:7911"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultStatsEnabled          = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Service: Service{
			BaseURL:        defaultServiceBaseURL,
			RequestTimeout: defaultServiceRequestTimeout,
			MaxRetries:     defaultServiceMaxRetries,
			RetryDelay:     defaultServiceRetryDelay,
		},
		Token: Token{
			TTL:         defaultTokenTTL,
			LandingPath: defaultTokenLandingPath,
		},
		Polling: Polling{
			Interval:    defaultPollInterval,
			MaxAttempts: defaultPollMaxAttempts,
		},
		Batch: Batch{
			MaxSize:          defaultBatchMaxSize,
			RetentionMinutes: defaultRetentionMinutes,
		},
		Paths: Paths{
			LogDir:  defaultLogDir,
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Stats: Stats{
			Enabled: defaultStatsEnabled,
		},
	}
}
