package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:               "~/.wabot",
			ContentDir:            "~/.wabot/content",
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
		},
		WhatsApp: WhatsAppConfig{
			Enabled:   true,
			SessionDB: "~/.wabot/session.db",
			QRFile:    "qr.png",
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    3000,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 120,
			MaxBytes:       50 * 1024 * 1024,
			RenderPages:    false,
			Browser: BrowserConfig{
				Headless: true,
			},
		},
		Media: MediaConfig{
			MaxBytes: 100 * 1024 * 1024,
			IndexDB:  "~/.wabot/media.db",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
