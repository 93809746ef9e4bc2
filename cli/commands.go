package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fahmaliyi/zkseed/account"
	"github.com/fahmaliyi/zkseed/keys"
	"github.com/fahmaliyi/zkseed/store"
)

// printProgress reports each finished substep on stderr.
func printProgress(cmd *cobra.Command) account.Observer {
	titles := make(map[account.Step]account.StepInfo, len(account.Steps))
	for _, s := range account.Steps {
		titles[s.ID] = s
	}
	return func(step account.Step, substep int) {
		info := titles[step]
		if substep < len(info.Substeps) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  [%s] %s\n", info.Title, info.Substeps[substep])
		}
	}
}

func newSeedCommand(app *App) *cobra.Command {
	var copyOut bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Print a new seed phrase without registering it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := keys.GenerateSeedPhrase()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), seed)
			if copyOut {
				return copyAndClear(cmd, seed, app.Config.ClipboardClearAfter())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyOut, "copy", false, "also copy the seed phrase to the clipboard")
	return cmd
}

func newSignupCommand(app *App) *cobra.Command {
	var (
		withSeed bool
		copyOut  bool
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Generate a seed phrase and register a new account record.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := app.Service
			svc.SetObserver(printProgress(cmd))

			var (
				res *account.SignupResult
				err error
			)
			if withSeed {
				seed, rerr := app.readSecret(cmd, "Seed phrase: ")
				if rerr != nil {
					return rerr
				}
				res, err = svc.SignupWithSeed(seed)
			} else {
				res, err = svc.Signup()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Seed phrase: %s\n", res.SeedPhrase)
			fmt.Fprintln(out, "Write it down. It is the only way back into this account.")
			fmt.Fprintf(out, "Record:      %s\n", res.Record.ID)
			fmt.Fprintf(out, "Key:         %s\n", res.Details.KeyAlgorithm)
			fmt.Fprintf(out, "Encryption:  %s\n", res.Details.Encryption)
			fmt.Fprintf(out, "KDF:         %s\n", res.Details.KeyDerivation)
			fmt.Fprintf(out, "Login hash:  %s\n", res.Details.PasswordHashing)
			if copyOut {
				return copyAndClear(cmd, res.SeedPhrase, app.Config.ClipboardClearAfter())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSeed, "with-seed", false, "read an existing seed phrase instead of generating one")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the seed phrase to the clipboard")
	return cmd
}

func newLoginCommand(app *App) *cobra.Command {
	var showKey bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Unlock the account record of a seed phrase.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := app.readSecret(cmd, "Seed phrase: ")
			if err != nil {
				return err
			}
			res, err := app.Service.Login(seed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as record %s (created %s, %d messages)\n",
				res.Record.ID, res.Record.CreatedAt, res.Record.MessageCount)
			if showKey {
				fmt.Fprint(out, res.PrivateKey)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showKey, "show-key", false, "print the unwrapped private key")
	return cmd
}

func newEncryptCommand(app *App) *cobra.Command {
	var (
		keyFile   string
		loginHash string
		recordID  string
	)
	cmd := &cobra.Command{
		Use:   "encrypt [message|-]",
		Short: "Encrypt a message to a stored public key and keep it on the record.",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := app.readInput(cmd, args)
			if err != nil {
				return err
			}
			var pub string
			if keyFile != "" {
				raw, err := os.ReadFile(keyFile)
				if err != nil {
					return err
				}
				pub = string(raw)
			}
			if recordID != "" {
				rec, err := app.Service.Users().Get(recordID)
				if err != nil {
					return err
				}
				loginHash = rec.LoginHash
			}

			app.Service.SetObserver(printProgress(cmd))
			res, err := app.Service.EncryptAndStore(msg, pub, loginHash)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.EncryptedMessage)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s, %s compression, stored on %s\n",
				res.Details.Algorithm, res.Details.Compression, res.Record.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "armored public key file (default: the record's own key)")
	cmd.Flags().StringVar(&loginHash, "login-hash", "", "store on the record with this login hash")
	cmd.Flags().StringVar(&recordID, "record", "", "store on the record with this id")
	return cmd
}

func newDecryptCommand(app *App) *cobra.Command {
	var (
		askSeed bool
		inFile  string
	)
	cmd := &cobra.Command{
		Use:   "decrypt [-]",
		Short: "Decrypt an armored PGP message with seed-derived keys.",
		Long: `Decrypt an armored PGP message. By default the stored seed phrase and the
latest record are used. With --ask-seed the seed phrase is read first and the
record it unlocks is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed string
			if askSeed {
				s, err := app.readSecret(cmd, "Seed phrase: ")
				if err != nil {
					return err
				}
				seed = s
			}

			var armored string
			if inFile != "" {
				raw, err := os.ReadFile(inFile)
				if err != nil {
					return err
				}
				armored = string(raw)
			} else {
				in, err := app.readInput(cmd, nil)
				if err != nil {
					return err
				}
				armored = in
			}

			app.Service.SetObserver(printProgress(cmd))
			var (
				msg string
				err error
			)
			if askSeed {
				msg, err = app.Service.DecryptMessageWithSeed(armored, seed)
			} else {
				msg, err = app.Service.DecryptMessage(armored)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&askSeed, "ask-seed", false, "read the seed phrase instead of using the stored one")
	cmd.Flags().StringVarP(&inFile, "in", "i", "", "read the message from a file instead of stdin")
	return cmd
}

func newUsersCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List the simulated server records.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := app.Service.Users().List()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if list == nil {
					list = []store.Record{}
				}
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tCREATED\tKEY\tMESSAGES\tLOGIN HASH")
			for i, r := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
					i+1, r.ID, r.CreatedAt, r.KeyAlgorithm, r.MessageCount, short(r.LoginHash, 20))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw records as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print one record.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := app.Service.Users().Get(args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Remove one record.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := app.Service.Users().Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Record deleted.")
				return nil
			},
		},
	)
	return cmd
}

func newShareCommand(app *App) *cobra.Command {
	var (
		copyOut bool
		origin  string
	)
	cmd := &cobra.Command{
		Use:   "share [message|-]",
		Short: "Encrypt a message under a fresh key and print a self-contained link.",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := app.readInput(cmd, args)
			if err != nil {
				return err
			}
			key, err := keys.GenerateShareKey()
			if err != nil {
				return err
			}
			data, err := keys.SealShare(key, msg)
			if err != nil {
				return err
			}
			if origin == "" {
				origin = app.Config.ShareOrigin
			}
			link := keys.ShareURL(origin, key, data)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Key:  %s\n", key)
			fmt.Fprintf(out, "Data: %s\n", data)
			fmt.Fprintf(out, "URL:  %s\n", link)
			if copyOut {
				return copyAndClear(cmd, link, app.Config.ClipboardClearAfter())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the link to the clipboard")
	cmd.Flags().StringVar(&origin, "origin", "", "link origin (default from config)")
	return cmd
}

func newOpenCommand(app *App) *cobra.Command {
	var key, data string
	cmd := &cobra.Command{
		Use:   "open [url]",
		Short: "Decrypt a shared message from its link, or from --key and --data.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				k, d, err := keys.ParseShareURL(args[0])
				if err != nil {
					return err
				}
				key, data = k, d
			}
			if key == "" || data == "" {
				return errors.New("a share url or both --key and --data are required")
			}
			msg, err := keys.OpenShare(strings.TrimSpace(key), strings.TrimSpace(data))
			if err != nil {
				return fmt.Errorf("decryption failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "base64 share key")
	cmd.Flags().StringVar(&data, "data", "", "base64 share payload")
	return cmd
}

func newBackupCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <file>",
		Short: "Write the wrapped private key of a seed's record to a backup file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := app.readSecret(cmd, "Seed phrase: ")
			if err != nil {
				return err
			}
			rec, err := app.Service.Backup(seed, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup of record %s written to %s\n", rec.ID, args[0])
			return nil
		},
	}
}

func newRecoverCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <file>",
		Short: "Print the private key held in a backup file, unlocked with the seed phrase.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := keys.ReadEnvelopeFile(args[0])
			if err != nil {
				return err
			}
			seed, err := app.readSecret(cmd, "Seed phrase: ")
			if err != nil {
				return err
			}
			pk, err := env.Unwrap(seed)
			if err != nil {
				return fmt.Errorf("recover failed: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), pk)
			return nil
		},
	}
}

func newResetCommand(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record and the stored seed phrase and encryption key.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				answer, err := app.readSecret(cmd, "Type 'reset' to delete all local data: ")
				if err != nil {
					return err
				}
				if answer != "reset" {
					return errors.New("reset aborted")
				}
			}
			if err := app.Service.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All local data removed.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newTUICommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse records and run the demo flow interactively.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunTUI(app)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		// the store is not needed here
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "zkseed "+Version)
			return nil
		},
	}
}
