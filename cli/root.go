package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fahmaliyi/zkseed/account"
	"github.com/fahmaliyi/zkseed/config"
	"github.com/fahmaliyi/zkseed/logging"
	"github.com/fahmaliyi/zkseed/store"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// App holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type App struct {
	ConfigPath string
	Config     *config.Config
	Log        *logging.Logger
	Store      store.Store
	Service    *account.Service

	in *bufio.Reader
}

// NewRootCommand builds the zkseed command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "zkseed",
		Short: "Seed-phrase account, encryption and sharing demo.",
		Long: `zkseed walks through a zero-knowledge style signup: a seed phrase is
generated, a login hash and an AES-256-GCM key are derived from it, a PGP key
pair is created and its private key is stored wrapped in a simulated server
record. Messages can then be encrypted to the stored public key and shared
through self-contained links.`,
		SilenceUsage:      true,
		PersistentPreRunE: app.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}
	root.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "",
		"TOML config file (default $"+config.EnvConfigPath+")")

	root.AddCommand(
		newSeedCommand(app),
		newSignupCommand(app),
		newLoginCommand(app),
		newEncryptCommand(app),
		newDecryptCommand(app),
		newUsersCommand(app),
		newShareCommand(app),
		newOpenCommand(app),
		newBackupCommand(app),
		newRecoverCommand(app),
		newResetCommand(app),
		newTUICommand(app),
		newVersionCommand(),
	)
	return root
}

func (a *App) open(cmd *cobra.Command, args []string) error {
	if a.Service != nil {
		return nil
	}
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open %s store in %s: %w", cfg.Backend, cfg.DataDir, err)
	}
	log.Debug("store opened", "backend", cfg.Backend, "dir", cfg.DataDir)

	a.Config = cfg
	a.Log = log
	a.Store = db
	a.Service = account.New(db, log.Named("account"), account.Options{
		Keys:           cfg.KeyOptions(),
		PersistSecrets: cfg.PersistSecrets,
	})
	return nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
		a.Store = nil
		a.Service = nil
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return err
}

// Execute runs the root command and exits non-zero on error.
func Execute(app *App) {
	err := NewRootCommand(app).Execute()
	app.Close()
	if err != nil {
		os.Exit(1)
	}
}
