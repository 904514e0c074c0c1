package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matthewbaird/erpconsole/internal/config"
	"github.com/matthewbaird/erpconsole/internal/doctype"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	root := &cobra.Command{
		Use:   "console",
		Short: "Browser console for browsing and editing ERP records",
		Long: `console serves a web console in front of an ERP backend: users log in
with their ERP credentials, browse paginated record lists and edit records
field by field or through whole-form edits.

Configuration is read from CONSOLE_* environment variables (a .env file in
the working directory is loaded first) and an optional config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	root.AddCommand(newServeCmd(v), newDoctypesCmd(v), newVersionCmd())
	return root
}

// initConfig layers .env, environment and the config file into v.
func initConfig(v *viper.Viper, cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	config.SetDefaults(v)
	config.BindEnv(v)
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", cfgFile, err)
	}
	return nil
}

func newLogger(c config.Log) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func loadRegistry(path string) (*doctype.Registry, error) {
	if path == "" {
		return doctype.Default()
	}
	return doctype.LoadFile(path)
}
