package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/foro/internal/config"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "foro",
	Short: "A shared forum feed for text, photos, files, locations and jokes",
	Long: `foro posts to a shared forum feed kept in a hosted database and object
storage service, a local bolt file, or Postgres. Updates reach every
watcher of the local feed cache as soon as they are stored.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, _ []string) {
		showBanner()
		_ = cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("foro %s\n", Version)
		fmt.Println("Forum feed")
		fmt.Println("github.com/pders01/foro")
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the default configuration to ~/.config/foro/config.toml",
	Run: func(_ *cobra.Command, _ []string) {
		home, _ := os.UserHomeDir()
		configFile := filepath.Join(home, ".config", "foro", "config.toml")

		if err := config.GenerateDefaultConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the bolt database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error or off (overrides config)")

	configCmd.AddCommand(configGenCmd)
	rootCmd.AddCommand(versionCmd, configCmd)
	addFeedCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var logoLines = []string{
	"█▀▀ █▀█ █▀█ █▀█",
	"█▀  █ █ █▀▄ █ █",
	"▀   ▀▀▀ ▀ ▀ ▀▀▀",
}

func showBanner() {
	colors := []lipgloss.Color{
		lipgloss.Color("#FF6B6B"),
		lipgloss.Color("#FFA86B"),
		lipgloss.Color("#95E1D3"),
		lipgloss.Color("#4ECDC4"),
	}

	lines := append(append([]string{}, logoLines...), "", "    Forum Feed "+Version)

	var coloredLines []string
	for i, line := range lines {
		if line == "" {
			coloredLines = append(coloredLines, line)
			continue
		}
		style := lipgloss.NewStyle().
			Foreground(colors[i%len(colors)]).
			Bold(i < len(logoLines))
		coloredLines = append(coloredLines, style.Render(line))
	}

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(1, 3).
		MarginTop(1)

	banner := lipgloss.JoinVertical(lipgloss.Center, coloredLines...)
	fmt.Println(borderStyle.Render(banner))
}
