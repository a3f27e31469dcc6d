package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"wabot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your wabot installation",
		Long: `Verifies that wabot's configuration, content directory, databases and
transports are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wabot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'wabot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return err
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Content directory writable
			if err := checkWritableDir(cfg.General.ContentDir); err != nil {
				printFail("Content directory", err.Error())
				failed++
			} else {
				printPass("Content directory", cfg.General.ContentDir)
				passed++
			}

			// 4. Databases
			if cfg.WhatsApp.Enabled {
				if err := checkDatabase(cfg.WhatsApp.SessionDB); err != nil {
					printFail("Session database", err.Error())
					failed++
				} else {
					printPass("Session database", cfg.WhatsApp.SessionDB)
					passed++
				}
			}
			if cfg.Media.IndexDB != "" {
				if err := checkDatabase(cfg.Media.IndexDB); err != nil {
					printFail("Media index", err.Error())
					failed++
				} else {
					printPass("Media index", cfg.Media.IndexDB)
					passed++
				}
			} else {
				printWarn("Media index", "disabled (wabot files lists the directory only)")
				warned++
			}

			// 5. Transports
			if cfg.Telegram.Enabled && len(cfg.Telegram.AllowFrom) == 0 {
				printWarn("Telegram", "enabled without allowFrom, every user can run commands")
				warned++
			} else if cfg.Telegram.Enabled {
				printPass("Telegram", fmt.Sprintf("%d allowed user(s)", len(cfg.Telegram.AllowFrom)))
				passed++
			}

			// 6. Chrome for page rendering
			if cfg.Fetch.RenderPages {
				if path, ok := findChrome(); ok {
					printPass("Chrome", path)
					passed++
				} else {
					printFail("Chrome", "fetch.renderPages is on but no Chrome/Chromium binary was found")
					failed++
				}
			}

			// 7. HTTP port
			if cfg.HTTP.Enabled {
				if err := checkPort(cfg.HTTP.Port); err != nil {
					printWarn("HTTP port", fmt.Sprintf("port %d may be in use: %v", cfg.HTTP.Port, err))
					warned++
				} else {
					printPass("HTTP port", fmt.Sprintf(":%d available", cfg.HTTP.Port))
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running wabot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nwabot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! wabot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func findChrome() (string, bool) {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	mac := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	if _, err := os.Stat(mac); err == nil {
		return mac, true
	}
	return "", false
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
