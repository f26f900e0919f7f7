package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/rescale/brocoli/internal/localfs"
	"github.com/rescale/brocoli/internal/pathutil"
	"github.com/rescale/brocoli/internal/progress"
)

// newGetCmd creates the 'get' command.
func newGetCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "get [-r] <path> [path...] <local-dir>",
		Short: "Download catalog files or directory trees",
		Long: `Download catalog files into an existing local directory.

With -r the arguments are directories; an existing local directory of the
same name is replaced.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cat, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			sources := args[:len(args)-1]
			dest, err := pathutil.ResolveAbsolutePath(args[len(args)-1])
			if err != nil {
				return err
			}
			if recursive {
				return drive(cmd, cat.DownloadDirectories(ctx, sources, dest), len(sources), "download", "downloading directories")
			}
			return drive(cmd, cat.DownloadFiles(ctx, sources, dest), len(sources), "download", "downloading files")
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Download directory trees")
	return cmd
}

// newPutCmd creates the 'put' command.
func newPutCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "put [-r] <local-path> [local-path...] <dir>",
		Short: "Upload local files or directory trees",
		Long: `Upload local files into a catalog directory.

With -r the arguments are local directories; an existing catalog directory of
the same name is replaced.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cat, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			sources, err := pathutil.ResolveAll(args[:len(args)-1])
			if err != nil {
				return err
			}
			dest := args[len(args)-1]
			if recursive {
				return drive(cmd, cat.UploadDirectories(ctx, sources, dest), len(sources), "upload", uploadLabel(sources))
			}
			return drive(cmd, cat.UploadFiles(ctx, sources, dest), len(sources), "upload", "uploading files")
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Upload directory trees")
	return cmd
}

// newSyncCmd creates the 'sync' command.
func newSyncCmd() *cobra.Command {
	var upload, download bool
	var parallel int

	cmd := &cobra.Command{
		Use:   "sync (--download|--upload) <dir> [dir...] <dest-dir>",
		Short: "Mirror several directory trees concurrently",
		Long: `Mirror directory trees between the catalog and the local filesystem.

Every directory is transferred as its own operation with its own progress bar;
up to --parallel operations run at the same time. A failing directory does not
stop the others. Directories with the same base name land in the same place and
are transferred one after another in argument order, so the last one wins.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if upload == download {
				return errors.New("exactly one of --download or --upload is required")
			}
			if parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
			}

			ctx, cat, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			dirs, dest := args[:len(args)-1], args[len(args)-1]

			op := cat.DownloadDirectories
			verb := "download"
			if upload {
				op = cat.UploadDirectories
				verb = "upload"
				dirs, err = pathutil.ResolveAll(dirs)
			} else {
				dest, err = pathutil.ResolveAbsolutePath(dest)
			}
			if err != nil {
				return err
			}

			ui := progress.NewMultiUI(len(dirs))
			wait, release := orderByBaseName(dirs)
			failed := runParallel(ctx, dirs, parallel, func(i int, dir string) error {
				defer close(release[i])
				if wait[i] != nil {
					select {
					case <-wait[i]:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				label := fmt.Sprintf("%s %s", verb, dir)
				if upload {
					label += treeSummary([]string{dir})
				}
				seq := op(ctx, []string{dir}, dest)
				_, err := progress.Drive(seq, 1, label, reporter(cmd, verb, ui.AddBar(i+1)))
				return err
			})
			ui.Wait()

			if failed > 0 {
				return fmt.Errorf("%d of %d directories failed", failed, len(dirs))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&download, "download", false, "Copy catalog directories into the local destination")
	cmd.Flags().BoolVar(&upload, "upload", false, "Copy local directories into the catalog destination")
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 4, "Maximum concurrent directory transfers")
	return cmd
}

// uploadLabel describes a directory upload by the size of the local trees.
func uploadLabel(sources []string) string {
	return "uploading directories" + treeSummary(sources)
}

// treeSummary is " (N files, SIZE)", or empty when the trees cannot be read;
// the transfer itself reports that error.
func treeSummary(roots []string) string {
	files, size, err := localfs.TreeStats(roots)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%d files, %s)", files, formatBytes(size))
}

// orderByBaseName chains items that share a base name. wait[i] is closed once
// the previous item with the same base name has finished (nil for the first);
// the caller closes release[i] when item i is done.
func orderByBaseName(items []string) (wait []<-chan struct{}, release []chan struct{}) {
	wait = make([]<-chan struct{}, len(items))
	release = make([]chan struct{}, len(items))
	last := make(map[string]chan struct{})
	for i, item := range items {
		release[i] = make(chan struct{})
		name := baseName(item)
		if prev, ok := last[name]; ok {
			wait[i] = prev
		}
		last[name] = release[i]
	}
	return wait, release
}

// baseName is the last element of a local or catalog path.
func baseName(p string) string {
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// runParallel calls fn for every item with at most limit calls in flight and
// returns the number of failures. Items not yet started when ctx is done count
// as failed.
func runParallel(ctx context.Context, items []string, limit int, fn func(int, string) error) int {
	semaphore := make(chan struct{}, limit)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	fail := func() {
		mu.Lock()
		failed++
		mu.Unlock()
	}

	for i, item := range items {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			fail()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()
			if err := fn(i, item); err != nil {
				GetLogger().Debug().Err(err).Str("dir", item).Msg("Transfer failed")
				fail()
			}
		}()
	}
	wg.Wait()
	return failed
}
