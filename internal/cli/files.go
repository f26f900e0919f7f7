package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/progress"
)

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory of the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cat, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			names, err := cat.ListDirectory(ctx, dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !long {
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			for _, name := range names {
				entry, err := cat.Stat(ctx, cat.Join(dir, name))
				if err != nil {
					return err
				}
				if entry.IsDir {
					name += "/"
				}
				fmt.Fprintf(out, "%-10s %10s  %s  %s\n", entry.Owner, formatBytes(entry.Size), formatTime(entry.ModTime), name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show owner, size and modification time")
	return cmd
}

// newStatCmd creates the 'stat' command.
func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path> [path...]",
		Short: "Show metadata of catalog paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cat, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			for i, p := range args {
				entry, err := cat.Stat(ctx, p)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printEntry(cmd.OutOrStdout(), entry)
			}
			return nil
		},
	}
}

func printEntry(w io.Writer, e catalog.Entry) {
	kind := "file"
	if e.IsDir {
		kind = "directory"
	}
	fmt.Fprintf(w, "Path:     %s\n", e.Path)
	fmt.Fprintf(w, "Type:     %s\n", kind)
	fmt.Fprintf(w, "Size:     %d (%s)\n", e.Size, formatBytes(e.Size))
	fmt.Fprintf(w, "Modified: %s\n", formatTime(e.ModTime))
	fmt.Fprintf(w, "Owner:    %s\n", e.Owner)
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	var parents bool

	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cat, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			if !parents {
				return cat.MakeDirectory(ctx, args[0])
			}
			for _, dir := range ancestors(args[0]) {
				err := cat.MakeDirectory(ctx, dir)
				if err != nil && !errors.Is(err, catalog.ErrAlreadyExists) {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parents, no error if the directory exists")
	return cmd
}

// ancestors returns p and its parents, outermost first.
func ancestors(p string) []string {
	p = strings.TrimRight(p, `/\`)
	var dirs []string
	for p != "" {
		dirs = append([]string{p}, dirs...)
		i := strings.LastIndexAny(p, `/\`)
		if i <= 0 {
			break
		}
		p = p[:i]
	}
	return dirs
}

// newRmCmd creates the 'rm' command.
func newRmCmd() *cobra.Command {
	var recursive, force bool

	cmd := &cobra.Command{
		Use:   "rm [-r] <path> [path...]",
		Short: "Delete files or directory trees from the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if recursive && !force && isTerminal(cmd.InOrStdin()) {
				ok, err := promptConfirm(cmd, fmt.Sprintf("Delete %d directory tree(s)?", len(args)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted")
					return nil
				}
			}

			ctx, cat, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			if recursive {
				return drive(cmd, cat.DeleteDirectories(ctx, args), len(args), "delete", "deleting directories")
			}
			return drive(cmd, cat.DeleteFiles(ctx, args), len(args), "delete", "deleting files")
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Delete directories and everything below them")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Do not ask for confirmation")
	return cmd
}

// reporter draws a progress bar on stderr, unless --quiet, and publishes the
// operation on the event bus.
func reporter(cmd *cobra.Command, op string, bar progress.Reporter) progress.Reporter {
	if quiet {
		bar = progress.NewNoOpProgress()
	} else if bar == nil {
		bar = progress.NewCLIProgressTo(cmd.ErrOrStderr())
	}
	return progress.Tee(bar, progress.NewBusProgress(bus, op))
}

// drive runs a bulk operation.
func drive(cmd *cobra.Command, seq catalog.Seq, total int, op, label string) error {
	done, err := progress.Drive(seq, total, label, reporter(cmd, op, nil))
	if err != nil {
		GetLogger().Debug().Int("done", done).Int("total", total).
			Str("class", http.ErrorTypeName(http.ClassifyError(err))).Err(err).Msg(label + " stopped")
		return withHint(err)
	}
	GetLogger().Debug().Int("items", done).Msg(label + " finished")
	return nil
}

// withHint points at the connection settings when err looks like rejected
// credentials. The original error stays in the chain.
func withHint(err error) error {
	if err == nil || !http.IsCredentialError(err) {
		return err
	}
	return fmt.Errorf("%w\nhint: check the connection credentials with 'connections edit'", err)
}

// formatBytes returns a human-readable byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
