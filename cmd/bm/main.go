package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"bm-go/internal/app"
	"bm-go/internal/bm"
	"bm-go/internal/config"
	"bm-go/internal/encryption"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// EnvPassphrase supplies the key passphrase non-interactively.
const EnvPassphrase = "BM_PASSPHRASE"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must call Close.
func newApp(cmd *cobra.Command, operation string, args []string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts := app.Options{Stderr: cmd.ErrOrStderr()}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.LogLevel = slog.LevelDebug
	}
	a, err := app.New(cmd.Context(), cfg, operation, args, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn against a fresh App and records its outcome on Close.
func withApp(operation string, fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, operation, args)
		if err != nil {
			return err
		}
		err = fn(cmd, a, args)
		if cerr := a.Close(err); err == nil && cerr != nil {
			err = cerr
		}
		return err
	}
}

// readPassphrase takes the passphrase from the environment, or prompts on
// the terminal.
func readPassphrase(cmd *cobra.Command, prompt string) (string, error) {
	if p, ok := os.LookupEnv(EnvPassphrase); ok {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to read the passphrase from; set %s", EnvPassphrase)
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(p), nil
}

func unlock(cmd *cobra.Command, a *app.App) error {
	if !a.NeedsPassphrase() {
		return nil
	}
	p, err := readPassphrase(cmd, "Passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(p)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

var rootCmd = &cobra.Command{
	Use:          "bm",
	Short:        "Deduplicating block backup",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults.BaseDir)
		cfg.LogDir = defaults.LogDir
		cfg.Vault.Encrypted, _ = cmd.Flags().GetBool("encrypt")
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.Migrate(cmd.Context(), cfg); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Fprintf(out, "Host ID: %s\n", hostID)
		fmt.Fprintf(out, "Base Dir: %s\n", cfg.BaseDir)
		if cfg.Vault.Encrypted {
			fmt.Fprintln(out, "Run `bm keys init` before the first backup.")
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m := &config.Manager{}
		return m.Write(cmd.OutOrStdout(), cfg)
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the vault key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		p, err := readPassphrase(cmd, "New passphrase: ")
		if err != nil {
			return err
		}
		if _, ok := os.LookupEnv(EnvPassphrase); !ok {
			again, err := readPassphrase(cmd, "Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != p {
				return errors.New("passphrases do not match")
			}
		}
		if err := enc.Setup(p); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
		return nil
	},
}

var dbSnapshotCmd = &cobra.Command{
	Use:   "snapshot PATH",
	Short: "Write a consistent copy of the SQLite database",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("SnapshotDatabase", func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := a.SnapshotDatabase(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", args[0])
		return nil
	}),
}

// vault command
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the payload vault",
}

var vaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the vault is reachable and writable",
	RunE: withApp("ValidateVault", func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := a.ValidateVault(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Vault OK")
		return nil
	}),
}

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage backup versions",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty version record",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("CreateVersion", func(cmd *cobra.Command, a *app.App, args []string) error {
		blocks, _ := cmd.Flags().GetInt64("blocks")
		size, _ := cmd.Flags().GetInt64("bytes")
		uid, err := a.CreateVersion(cmd.Context(), args[0], blocks, size)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), uid)
		return nil
	}),
}

var versionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List versions",
	RunE: withApp("ListVersions", func(cmd *cobra.Command, a *app.App, args []string) error {
		versions, err := a.ListVersions(cmd.Context())
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No versions.")
			return nil
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "UID\tNAME\tCREATED\tBLOCKS\tBYTES\tVALIDITY")
		for _, v := range versions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", v.UID, v.Name, formatTime(v.CreatedAt), v.Size, v.SizeBytes, v.Validity)
		}
		return tw.Flush()
	}),
}

var versionShowCmd = &cobra.Command{
	Use:   "show UID",
	Short: "Show a version and its blocks",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("GetVersion", func(cmd *cobra.Command, a *app.App, args []string) error {
		v, err := a.GetVersion(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "UID:      %s\n", v.UID)
		fmt.Fprintf(out, "Name:     %s\n", v.Name)
		fmt.Fprintf(out, "Created:  %s\n", formatTime(v.CreatedAt))
		fmt.Fprintf(out, "Size:     %d blocks, %d bytes\n", v.Size, v.SizeBytes)
		fmt.Fprintf(out, "Validity: %s\n", v.Validity)

		if showBlocks, _ := cmd.Flags().GetBool("blocks"); !showBlocks {
			return nil
		}
		blocks, err := a.ListBlocks(cmd.Context(), v.UID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		tw := newTable(out)
		fmt.Fprintln(tw, "SEQ\tCONTENT UID\tCHECKSUM\tSIZE\tVALIDITY")
		for _, b := range blocks {
			uid, sum := b.ContentUID, b.Checksum
			if b.IsSparse() {
				uid, sum = "(sparse)", "-"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", b.SeqID, uid, sum, b.Size, b.Validity)
		}
		return tw.Flush()
	}),
}

func setValidityCmd(use, short string, valid bool) *cobra.Command {
	op := "InvalidateVersion"
	if valid {
		op = "ValidateVersion"
	}
	return &cobra.Command{
		Use:   use + " UID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(op, func(cmd *cobra.Command, a *app.App, args []string) error {
			if err := a.SetVersionValidity(cmd.Context(), args[0], valid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version %s marked %s\n", args[0], validityWord(valid))
			return nil
		}),
	}
}

func validityWord(valid bool) string {
	if valid {
		return bm.Valid.String()
	}
	return bm.Invalid.String()
}

var versionInvalidateCmd = setValidityCmd("invalidate", "Mark a version invalid", false)

var versionValidateCmd = setValidityCmd("validate", "Mark a version valid", true)

var versionDeleteCmd = &cobra.Command{
	Use:   "delete UID",
	Short: "Delete a version and queue its payloads for collection",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("DeleteVersion", func(cmd *cobra.Command, a *app.App, args []string) error {
		n, err := a.DeleteVersion(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted version %s (%d block(s))\n", args[0], n)
		return nil
	}),
}

// block command
var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Inspect and invalidate stored blocks",
}

var blockInvalidateCmd = &cobra.Command{
	Use:   "invalidate CONTENT_UID",
	Short: "Mark every block holding a payload invalid",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("InvalidateBlocks", func(cmd *cobra.Command, a *app.App, args []string) error {
		checksum, _ := cmd.Flags().GetString("checksum")
		affected, err := a.InvalidateBlocks(cmd.Context(), args[0], checksum)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(affected) == 0 {
			fmt.Fprintln(out, "No versions affected.")
			return nil
		}
		fmt.Fprintf(out, "Invalidated %d version(s):\n", len(affected))
		for _, uid := range affected {
			fmt.Fprintf(out, "  %s\n", uid)
		}
		return nil
	}),
}

var blockFindCmd = &cobra.Command{
	Use:   "find CONTENT_UID",
	Short: "Show one block referencing a payload",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("FindBlock", func(cmd *cobra.Command, a *app.App, args []string) error {
		b, err := a.FindBlock(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s #%d  %s  %d bytes  %s\n", b.VersionUID, b.SeqID, b.Checksum, b.Size, b.Validity)
		return nil
	}),
}

// dedup command
var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Query the deduplication index",
}

var dedupLookupCmd = &cobra.Command{
	Use:   "lookup CHECKSUM",
	Short: "Find the payload a block with this checksum would share",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("LookupChecksum", func(cmd *cobra.Command, a *app.App, args []string) error {
		uid, found, err := a.LookupChecksum(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintln(cmd.OutOrStdout(), "No valid payload.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), uid)
		return nil
	}),
}

var dedupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List referenced content uids",
	RunE: withApp("ListContentUIDs", func(cmd *cobra.Command, a *app.App, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		uids, err := a.ListContentUIDs(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		for _, uid := range uids {
			fmt.Fprintln(cmd.OutOrStdout(), uid)
		}
		return nil
	}),
}

// gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim payloads of deleted versions",
}

var gcSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one delete-candidate sweep",
	RunE: withApp("Sweep", func(cmd *cobra.Command, a *app.App, args []string) error {
		res, err := a.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Examined %d candidate(s) in %d page(s): %d still referenced, %d reclaimed (%s)\n",
			res.Candidates, res.Pages, res.FalsePositives, res.Deletions, res.Duration.Truncate(time.Millisecond))
		return nil
	}),
}

var gcPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Count queued delete candidates",
	RunE: withApp("PendingCandidates", func(cmd *cobra.Command, a *app.App, args []string) error {
		counts, err := a.PendingCandidates(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range []bm.DeletePhase{bm.PhaseMaybe, bm.PhaseSure, bm.PhaseDeleted} {
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d\n", p, counts[p])
		}
		return nil
	}),
}

var gcDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sweep periodically until interrupted",
	RunE: withApp("GCDaemon", func(cmd *cobra.Command, a *app.App, args []string) error {
		return a.RunDaemon(cmd.Context())
	}),
}

// export / import commands
var exportCmd = &cobra.Command{
	Use:   "export UID",
	Short: "Write a version's metadata to stdout or --output",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("Export", func(cmd *cobra.Command, a *app.App, args []string) (err error) {
		w := cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, ferr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
			if ferr != nil {
				return fmt.Errorf("creating export file: %w", ferr)
			}
			defer func() {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			}()
			w = f
		}
		return a.Export(cmd.Context(), args[0], w)
	}),
}

var importCmd = &cobra.Command{
	Use:   "import [PATH]",
	Short: "Recreate a version from exported metadata (stdin without PATH)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp("Import", func(cmd *cobra.Command, a *app.App, args []string) error {
		r := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}
			defer f.Close()
			r = f
		}
		uid, err := a.Import(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported version %s\n", uid)
		return nil
	}),
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats [UID]",
	Short: "Show backup statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp("ListStats", func(cmd *cobra.Command, a *app.App, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		uid := ""
		if len(args) == 1 {
			uid = args[0]
		}
		stats, err := a.ListStats(cmd.Context(), uid, limit)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No statistics recorded.")
			return nil
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "UID\tNAME\tCREATED\tREAD\tWRITTEN\tDEDUP\tSPARSE\tDURATION")
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				s.VersionUID, s.VersionName, formatTime(s.CreatedAt),
				s.BytesRead, s.BytesWritten, s.BytesDedup, s.BytesSparse,
				s.Duration.Truncate(time.Millisecond))
		}
		return tw.Flush()
	}),
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup NAME PATH",
	Short: "Back up a file or block device as a new version",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("Backup", func(cmd *cobra.Command, a *app.App, args []string) error {
		res, err := a.Backup(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		s := res.Stats
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version %s\n", res.VersionUID)
		fmt.Fprintf(out, "Read %d block(s): %d written, %d deduplicated, %d sparse (%s)\n",
			s.BlocksRead, s.BlocksWritten, s.BlocksDedup, s.BlocksSparse, s.Duration.Truncate(time.Millisecond))
		return nil
	}),
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore UID PATH",
	Short: "Restore a version to a file",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("Restore", func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := unlock(cmd, a); err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		res, err := a.Restore(cmd.Context(), args[0], args[1], force)
		if res != nil {
			reportRead(cmd.OutOrStdout(), res.Blocks, res.Bytes, res.Corrupt, res.Invalidated)
		}
		return err
	}),
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify UID",
	Short: "Read back every block of a version and check its checksum",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("Verify", func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := unlock(cmd, a); err != nil {
			return err
		}
		res, err := a.Verify(cmd.Context(), args[0])
		if res != nil {
			reportRead(cmd.OutOrStdout(), res.Blocks, res.Bytes, res.Corrupt, res.Invalidated)
		}
		return err
	}),
}

func reportRead(w io.Writer, blocks, bytes int64, corrupt []int64, invalidated []string) {
	fmt.Fprintf(w, "Read %d block(s), %d bytes\n", blocks, bytes)
	if len(corrupt) == 0 {
		return
	}
	seqs := make([]string, len(corrupt))
	for i, c := range corrupt {
		seqs[i] = fmt.Sprint(c)
	}
	fmt.Fprintf(w, "Corrupt blocks: %s\n", strings.Join(seqs, ", "))
	fmt.Fprintf(w, "Versions marked invalid: %s\n", strings.Join(invalidated, ", "))
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Find vault payloads no block references",
	Long:  "Find vault payloads no block references. With --delete the orphans are removed. Deleting fails while a backup holds the vault lock, and backups fail while it runs.",
	RunE: withApp("Reconcile", func(cmd *cobra.Command, a *app.App, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		remove, _ := cmd.Flags().GetBool("delete")
		res, err := a.Reconcile(cmd.Context(), prefix, remove)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, uid := range res.Orphans {
			fmt.Fprintln(out, uid)
		}
		fmt.Fprintf(out, "%d stored, %d orphaned, %d deleted\n", res.Stored, len(res.Orphans), res.Deleted)
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt vault payloads with age")
	configCmd.AddCommand(configShowCmd)

	keysCmd.AddCommand(keysInitCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbSnapshotCmd)

	vaultCmd.AddCommand(vaultCheckCmd)

	// version subcommands
	versionCmd.AddCommand(versionCreateCmd)
	versionCreateCmd.Flags().Int64("blocks", 0, "Logical size in blocks")
	versionCreateCmd.Flags().Int64("bytes", 0, "Logical size in bytes")
	versionCmd.AddCommand(versionListCmd)
	versionCmd.AddCommand(versionShowCmd)
	versionShowCmd.Flags().BoolP("blocks", "b", false, "List the version's blocks")
	versionCmd.AddCommand(versionInvalidateCmd)
	versionCmd.AddCommand(versionValidateCmd)
	versionCmd.AddCommand(versionDeleteCmd)

	blockCmd.AddCommand(blockInvalidateCmd)
	blockInvalidateCmd.Flags().String("checksum", "", "Checksum of the payload (looked up when empty)")
	blockCmd.AddCommand(blockFindCmd)

	dedupCmd.AddCommand(dedupLookupCmd)
	dedupCmd.AddCommand(dedupListCmd)
	dedupListCmd.Flags().String("prefix", "", "Only uids starting with prefix")

	gcCmd.AddCommand(gcSweepCmd)
	gcCmd.AddCommand(gcPendingCmd)
	gcCmd.AddCommand(gcDaemonCmd)

	exportCmd.Flags().StringP("output", "o", "", "Write to a new file instead of stdout")
	statsCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	restoreCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	reconcileCmd.Flags().String("prefix", "", "Only payload uids starting with prefix")
	reconcileCmd.Flags().Bool("delete", false, "Delete orphaned payloads")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(dedupCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reconcileCmd)
}
