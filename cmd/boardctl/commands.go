package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"bulletin/internal/board"
	"bulletin/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

// errVerifyFailed makes verify exit non-zero after printing its report.
var errVerifyFailed = errors.New("ledger verification failed")

type cli struct {
	dbPath  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "boardctl",
		Short: "Inspect a bulletin board ledger",
		Long: `boardctl opens the board's database read-only. Run it while the
server is stopped, or it waits on the file lock until --timeout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "path to the board database (default: BULLETIN_DB_PATH or the XDG data dir)")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 5*time.Second, "how long to wait for the file lock")

	latestN := 10

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ledger counters and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(s *board.Store) error {
				return printStats(cmd.Context(), cmd.OutOrStdout(), s, c.dbPath)
			})
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record, including tombstones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			return c.withStore(func(s *board.Store) error {
				rec, err := s.GetRecord(cmd.Context(), id)
				if err != nil {
					return err
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}

	latestCmd := &cobra.Command{
		Use:   "latest",
		Short: "List the newest live top-level records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(s *board.Store) error {
				records, err := s.Latest(cmd.Context(), latestN)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "no live records")
				}
				for _, rec := range records {
					printRecord(out, rec)
				}
				return nil
			})
		},
	}
	latestCmd.Flags().IntVarP(&latestN, "count", "n", latestN, "number of records")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Recount every counter from the indexes and check handle ownership",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(s *board.Store) error {
				report, err := s.Verify(cmd.Context())
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report)
				if !report.OK() {
					return errVerifyFailed
				}
				return nil
			})
		},
	}

	backupCmd := &cobra.Command{
		Use:   "backup <out.zst>",
		Short: "Write a zstd-compressed snapshot of the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(s *board.Store) error {
				raw, compressed, err := backup(s, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %s uncompressed)\n",
					args[0], humanize.Bytes(uint64(compressed)), humanize.Bytes(uint64(raw)))
				return nil
			})
		},
	}

	rootCmd.AddCommand(statsCmd, getCmd, latestCmd, verifyCmd, backupCmd)
	return rootCmd
}

func (c *cli) withStore(fn func(*board.Store) error) error {
	if c.dbPath == "" {
		cfg, err := config.FromEnv(os.Getenv)
		if err != nil {
			return err
		}
		c.dbPath = cfg.DBPath
	}
	s, err := board.Open(board.Options{
		Path:     c.dbPath,
		ReadOnly: true,
		Timeout:  c.timeout,
	})
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func printStats(ctx context.Context, w io.Writer, s *board.Store, path string) error {
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "next id:        %d\n", stats.NextID)
	fmt.Fprintf(w, "active records: %s / %s\n", humanize.Comma(int64(stats.ActiveTotal)), humanize.Comma(int64(stats.Settings.Capacity)))
	if o := stats.Overflow(); o > 0 {
		fmt.Fprintf(w, "overflow:       %d (replies awaiting reclaim)\n", o)
	}
	fmt.Fprintf(w, "evict head:     %d\n", stats.EvictHead)
	fmt.Fprintf(w, "ledger step:    %d\n", stats.Step)
	fmt.Fprintf(w, "bucket size:    %d\n", stats.BucketSize)
	fmt.Fprintf(w, "cooldown:       %s\n", stats.Settings.Cooldown)
	fmt.Fprintf(w, "max latest:     %d\n", stats.Settings.MaxLatest)
	fmt.Fprintf(w, "max page size:  %d\n", stats.Settings.MaxPageSize)
	fmt.Fprintf(w, "max body:       %d\n", stats.Settings.MaxBodyLength)
	if fi, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "file size:      %s\n", humanize.Bytes(uint64(fi.Size())))
	}
	return nil
}

func printRecord(w io.Writer, rec *board.Record) {
	state := "live"
	if rec.Deleted {
		state = "deleted"
	}
	handle := rec.AuthorHandle
	if handle == "" {
		handle = "-"
	}
	fmt.Fprintf(w, "#%d %s @%s (%s) %s", rec.ID, state, handle, rec.Author, humanize.Time(rec.CreatedAt))
	if rec.IsReply() {
		fmt.Fprintf(w, " reply to #%d", rec.ParentID)
	}
	fmt.Fprintf(w, "\n    %s\n", rec.Body)
}

func printReport(w io.Writer, r *board.Report) {
	fmt.Fprintf(w, "records: %d (%d live)\n", r.Records, r.Live)
	for _, m := range r.Mismatches {
		fmt.Fprintf(w, "mismatch: %s\n", m)
	}
	for _, p := range r.HandleProblems {
		fmt.Fprintf(w, "handle: %s\n", p)
	}
	for _, id := range r.HeadViolations {
		fmt.Fprintf(w, "live record #%d sits before the evict head\n", id)
	}
	if r.OK() {
		fmt.Fprintln(w, "ok")
	}
}

// countingWriter counts bytes passed through to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// backup streams a consistent snapshot through a zstd encoder into path.
// It returns the raw and compressed sizes.
func backup(s *board.Store, path string) (int64, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	counter := &countingWriter{w: f}
	enc, err := zstd.NewWriter(counter, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, 0, err
	}
	raw, err := s.Backup(enc)
	if err != nil {
		enc.Close()
		return 0, 0, fmt.Errorf("snapshot failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, 0, err
	}
	return raw, counter.n, nil
}
