// Package cli defines the cobra commands of the medcasebot binary.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/korjavin/medcasebot/catalog"
	"github.com/korjavin/medcasebot/config"
	"github.com/korjavin/medcasebot/database"
	"github.com/korjavin/medcasebot/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "medcasebot",
	Short: "Telegram bot that delivers daily clinical cases",
	Long: `MedCaseBot sends each user a daily batch of clinical cases taken from a
channel archive, collects their answers and shows how everyone else answered.
Without a subcommand it runs the bot.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runServe,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
}

// environment is what every command needs before doing its own work
type environment struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB
}

func setup() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &environment{cfg: cfg, log: log, db: db}, nil
}

func (e *environment) close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn("Error closing database", "error", err)
	}
	e.log.Sync()
}

func (e *environment) catalog() *catalog.Catalog {
	return catalog.New(e.db, func(err error) bool { return errors.Is(err, database.ErrNotFound) }, e.log)
}
