package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"wabot/internal/bot"
	"wabot/internal/browser"
	"wabot/internal/bus"
	"wabot/internal/channel"
	"wabot/internal/config"
	"wabot/internal/domain"
	"wabot/internal/fetch"
	"wabot/internal/media"
	"wabot/internal/pairing"
	"wabot/internal/web"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = newLogger("info")

	root := &cobra.Command{
		Use:   "wabot",
		Short: "wabot: command-driven chat bot for WhatsApp and Telegram",
		Long:  "wabot answers chat commands (!dl, !sticker2img, !tagall, !listfiles, !help) and keeps a copy of incoming media.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.wabot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(filesCmd())
	root.AddCommand(browserCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the content directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			contentDir := config.ExpandPath(cfg.General.ContentDir)
			if err := os.MkdirAll(contentDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "content", contentDir)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect the enabled transports and answer commands",
		Long:  "Starts WhatsApp and/or Telegram, the command loop and the HTTP server. On first run the WhatsApp QR code is printed and written to qr.png. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = newLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, index, err := openStore(cfg)
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
	}

	replies := bot.DefaultReplies()
	if cfg.General.RepliesFile != "" {
		replies, err = bot.LoadReplies(cfg.General.RepliesFile)
		if err != nil {
			return fmt.Errorf("load replies: %w", err)
		}
	}

	var renderer fetch.Renderer
	if cfg.Fetch.RenderPages {
		renderer = browser.NewBridge(browser.BridgeConfig{
			ProfileDir: cfg.Fetch.Browser.ProfileDir,
			Headless:   cfg.Fetch.Browser.Headless,
			Logger:     logger,
		})
	}
	fetcher := fetch.New(fetch.Config{
		Timeout:  time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		MaxBytes: cfg.Fetch.MaxBytes,
		Renderer: renderer,
		Logger:   logger,
	})

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	router := bot.NewRouter(bot.RouterConfig{
		Store:   store,
		Fetcher: fetcher,
		Replies: replies,
		Logger:  logger,
	})
	loop := bot.NewLoop(bot.LoopConfig{
		Bus:         messageBus,
		Router:      router,
		Concurrency: cfg.General.MaxConcurrentMessages,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Run(gctx)
		return nil
	})

	var channels []domain.Channel
	if cfg.WhatsApp.Enabled {
		channels = append(channels, channel.NewWhatsApp(channel.WhatsAppConfig{
			SessionDB: cfg.WhatsApp.SessionDB,
			Pairing: pairing.New(pairing.Config{
				Store:    store,
				FileName: cfg.WhatsApp.QRFile,
				Logger:   logger,
			}),
			Logger: logger,
		}))
	} else {
		logger.Info("whatsapp channel disabled")
	}
	if cfg.Telegram.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Telegram.Token,
			AllowFrom: cfg.Telegram.AllowFrom,
			MaxBytes:  cfg.Media.MaxBytes,
			Logger:    logger,
		}))
	} else {
		logger.Info("telegram channel disabled")
	}

	for _, ch := range channels {
		g.Go(func() error {
			if err := ch.Start(gctx, messageBus); err != nil {
				return fmt.Errorf("%s: %w", ch.Name(), err)
			}
			return nil
		})
	}

	if cfg.HTTP.Enabled {
		endpoint := ""
		if cfg.Metrics.Enabled {
			endpoint = cfg.Metrics.Endpoint
		}
		srv := web.NewServer(web.ServerConfig{
			Host:            cfg.HTTP.Host,
			Port:            cfg.HTTP.Port,
			Store:           store,
			QRFile:          cfg.WhatsApp.QRFile,
			MetricsEndpoint: endpoint,
			Logger:          logger,
		})
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	logger.Info("wabot started. Press Ctrl+C to stop.", "content", store.Dir())

	err = g.Wait()
	for _, ch := range channels {
		if stopErr := ch.Stop(); stopErr != nil {
			logger.Warn("channel stop failed", "channel", ch.Name(), "err", stopErr)
		}
	}
	logger.Info("shutdown complete")
	return err
}

// openStore opens the content directory and, when configured, its index.
func openStore(cfg *config.Config) (*media.Store, *media.Index, error) {
	var index *media.Index
	if cfg.Media.IndexDB != "" {
		var err error
		index, err = media.OpenIndex(cfg.Media.IndexDB, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("media index: %w", err)
		}
	}
	store, err := media.NewStore(media.StoreConfig{
		Dir:      cfg.General.ContentDir,
		MaxBytes: cfg.Media.MaxBytes,
		Index:    index,
		Logger:   logger,
	})
	if err != nil {
		if index != nil {
			index.Close()
		}
		return nil, nil, fmt.Errorf("media store: %w", err)
	}
	return store, index, nil
}

func filesCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List stored media files",
		Long:  "Prints the most recent entries of the media index, or the content directory when the index is disabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, index, err := openStore(cfg)
			if err != nil {
				return err
			}

			if index == nil {
				names, err := store.List()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Println(n)
				}
				return nil
			}
			defer index.Close()

			entries, err := index.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				data, _ := json.MarshalIndent(entries, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(entries) == 0 {
				fmt.Println("No files stored yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-8s %-10s %-24s %s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, humanSize(e.Size), e.MimeType, e.Name)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func browserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browser",
		Short: "Manage the Chrome profile used to render pages for !dl",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "login [url]",
		Short: "Open a visible Chrome window on url to sign in",
		Long:  "Cookies are saved in the browser profile and reused by headless page rendering.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Fetch.Browser.ProfileDir,
				Logger:     logger,
			})
			return b.Login(ctx, args[0])
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wabot %s\n", version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. whatsapp.qrFile); without a path, list every setting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if len(args) == 0 {
				paths := config.ListPaths(config.Sanitize(cfg))
				for _, p := range slices.Sorted(maps.Keys(paths)) {
					data, _ := json.Marshal(paths[p])
					fmt.Printf("%s = %s\n", p, data)
				}
				return nil
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. telegram.enabled true)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			shown, _ := config.GetByPath(config.Sanitize(cfg), args[0])
			logger.Info("config updated", "path", args[0], "value", shown, "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "show",
		Aliases: []string{"list"},
		Short:   "Print the config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
