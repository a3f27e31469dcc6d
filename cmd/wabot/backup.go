package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wabot/internal/config"

	"github.com/spf13/cobra"
)

// Archive member names. Restoring maps them back to the configured paths.
const (
	backupConfigName  = "config.json"
	backupSessionName = "session.db"
	backupIndexName   = "media.db"
)

func backupCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the WhatsApp session, media index and config",
		Long: `Creates a compressed .tar.gz archive with the linked-device database,
the media index and the configuration file, so the bot can move hosts
without pairing again. Stored media files are not included.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if outputPath == "" {
				backupDir := filepath.Join(config.ExpandPath(cfg.General.DataDir), "backups")
				if err := os.MkdirAll(backupDir, 0o755); err != nil {
					return fmt.Errorf("cannot create backup directory: %w", err)
				}
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(backupDir, fmt.Sprintf("wabot-backup-%s.tar.gz", ts))
			}

			members := backupMembers(cfgPath, cfg)
			if len(members) == 0 {
				return fmt.Errorf("no files to backup")
			}

			if err := createTarGz(outputPath, members); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Printf("Backup created: %s\n", outputPath)
			fmt.Printf("Files included: %d\n", len(members))
			for name, path := range members {
				info, _ := os.Stat(path)
				size := int64(0)
				if info != nil {
					size = info.Size()
				}
				fmt.Printf("  - %s (%s)\n", name, humanSize(size))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: <dataDir>/backups/wabot-backup-<timestamp>.tar.gz)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <file.tar.gz>",
		Short: "Restore the session, media index and config from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Warn("config not found, restoring to default locations", "path", cfgPath, "err", err)
				cfg = config.Defaults()
				cfg.WhatsApp.SessionDB = config.ExpandPath(cfg.WhatsApp.SessionDB)
				cfg.Media.IndexDB = config.ExpandPath(cfg.Media.IndexDB)
			}
			targets := restoreTargets(cfgPath, cfg)

			if !force {
				for _, path := range targets {
					if _, err := os.Stat(path); err == nil {
						fmt.Printf("WARNING: This will overwrite existing data.\n")
						for name, p := range targets {
							fmt.Printf("  %-11s %s\n", name+":", p)
						}
						fmt.Printf("Use --force to skip this warning.\n")
						return fmt.Errorf("restore aborted (use --force to proceed)")
					}
				}
			}

			restored, err := extractTarGz(args[0], targets)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Printf("Restore completed from: %s\n", args[0])
			fmt.Printf("Files restored: %d\n", len(restored))
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// backupMembers maps archive names to the existing files to include.
// SQLite WAL and SHM companions travel with their database.
func backupMembers(cfgPath string, cfg *config.Config) map[string]string {
	members := make(map[string]string)
	add := func(name, path string) {
		if path == "" {
			return
		}
		if _, err := os.Stat(path); err == nil {
			members[name] = path
		}
	}
	add(backupConfigName, cfgPath)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		add(backupSessionName+suffix, cfg.WhatsApp.SessionDB+suffix)
		if cfg.Media.IndexDB != "" {
			add(backupIndexName+suffix, cfg.Media.IndexDB+suffix)
		}
	}
	return members
}

func restoreTargets(cfgPath string, cfg *config.Config) map[string]string {
	targets := map[string]string{backupConfigName: cfgPath}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		targets[backupSessionName+suffix] = cfg.WhatsApp.SessionDB + suffix
		if cfg.Media.IndexDB != "" {
			targets[backupIndexName+suffix] = cfg.Media.IndexDB + suffix
		}
	}
	return targets
}

// createTarGz creates a .tar.gz archive with members stored under their
// archive names.
func createTarGz(outputPath string, members map[string]string) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	for name, path := range members {
		if err := addFileToTar(tarWriter, name, path); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}
	}

	return nil
}

func addFileToTar(tw *tar.Writer, name, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tw, file)
	return err
}

// extractTarGz writes every known archive member to its target path.
// Unknown members are skipped.
func extractTarGz(archivePath string, targets map[string]string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	var restored []string

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		targetPath, ok := targets[filepath.Base(header.Name)]
		if !ok || strings.TrimSpace(targetPath) == "" {
			logger.Warn("skipping unknown archive member", "name", header.Name)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return nil, err
		}

		outFile, err := os.Create(targetPath)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", targetPath, err)
		}

		if _, err := io.Copy(outFile, tarReader); err != nil {
			outFile.Close()
			return nil, fmt.Errorf("extract %s: %w", targetPath, err)
		}
		outFile.Close()

		restored = append(restored, targetPath)
	}

	return restored, nil
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
