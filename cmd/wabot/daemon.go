package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.wabot.serve"
	systemdUnit  = "wabot.service"
)

// serviceSpec is the data the service templates are rendered with.
type serviceSpec struct {
	Label  string
	Exec   string
	Config string
	Log    string
	ErrLog string
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install wabot serve as a user service (launchd/systemd)",
		Long:  "Writes a launchd agent or systemd user unit that runs 'wabot serve' with the current config and restarts it on failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			cfgPath, err := filepath.Abs(resolveConfigPath())
			if err != nil {
				return err
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			spec := serviceSpec{
				Label:  launchdLabel,
				Exec:   execPath,
				Config: cfgPath,
				Log:    filepath.Join(home, ".wabot", "logs", "wabot.log"),
				ErrLog: filepath.Join(home, ".wabot", "logs", "wabot-error.log"),
			}

			path, tmpl, err := servicePath(runtime.GOOS, home)
			if err != nil {
				return err
			}
			content, err := renderService(tmpl, spec)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(spec.Log), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, content, 0o644); err != nil {
				return err
			}

			fmt.Printf("Service installed: %s\n", path)
			if runtime.GOOS == "darwin" {
				fmt.Printf("To start: launchctl load %s\n", path)
				fmt.Printf("To stop:  launchctl unload %s\n", path)
			} else {
				fmt.Printf("To start:  systemctl --user start wabot\n")
				fmt.Printf("To enable: systemctl --user enable wabot\n")
				fmt.Printf("Logs:      journalctl --user -u wabot -f\n")
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the wabot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, _, err := servicePath(runtime.GOOS, home)
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Service uninstalled: %s\n", path)
			return nil
		},
	}
}

// servicePath returns where the service file lives on goos and the template
// that renders it.
func servicePath(goos, home string) (string, *template.Template, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), launchdTemplate, nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), systemdTemplate, nil
	default:
		return "", nil, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func renderService(tmpl *template.Template, spec serviceSpec) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec); err != nil {
		return nil, fmt.Errorf("render service file: %w", err)
	}
	return buf.Bytes(), nil
}

var launchdTemplate = template.Must(template.New("launchd").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.Log}}</string>
    <key>StandardErrorPath</key>
    <string>{{.ErrLog}}</string>
</dict>
</plist>
`))

var systemdTemplate = template.Must(template.New("systemd").Parse(`[Unit]
Description=wabot chat command bot
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.Exec}} serve --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))
