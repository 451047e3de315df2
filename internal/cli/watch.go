package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/source"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		pattern   string
		debounce  time.Duration
		pods      bool
		podPrefix string
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-index a log directory whenever it changes",
		Long: `Indexes the matching files already in dir, then watches it. Each time
matching files are written, their new lines are read and the whole
accumulated corpus is sent as a new generation. Runs until interrupted.

With --pods, dir is a kubelet pod log root (default /var/log/pods) and
every container directory of the pods whose name starts with
--pod-prefix is watched instead. Pods started later are not picked up.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if pods {
				return cobra.MaximumNArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if pods {
				root := source.DefaultPodLogRoot
				if len(args) == 1 {
					root = args[0]
				}
				found, err := source.PodLogDirs(root, podPrefix)
				if err != nil {
					return err
				}
				if len(found) == 0 {
					return fmt.Errorf("no pod log directories under %s match prefix %q", root, podPrefix)
				}
				cmd.Printf("watching %d container log directories\n", len(found))
				dirs = found
			}
			client, err := a.searchClient()
			if err != nil {
				return err
			}
			watcher, err := source.NewMultiDirWatcher(dirs, pattern, debounce)
			if err != nil {
				return err
			}
			tailer := source.NewLogTailer()

			reindex := func(ctx context.Context, paths []string) error {
				var added int
				for _, p := range paths {
					docs, err := tailer.Tail(p)
					if err != nil {
						return err
					}
					added += len(docs)
				}
				if added == 0 {
					return nil
				}
				resp, err := sendCorpus(ctx, client, tailer.Documents())
				if err != nil {
					return err
				}
				cmd.Printf("%d new lines, generation %d now serves %d documents\n", added, resp.Generation, resp.Documents)
				return nil
			}

			existing, err := watcher.Existing()
			if err != nil {
				return err
			}
			if err := reindex(cmd.Context(), existing); err != nil && !errors.Is(err, errNoDocuments) {
				return err
			}
			return watcher.Run(cmd.Context(), reindex)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "*.log", "glob matched against file names")
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before re-indexing")
	cmd.Flags().BoolVar(&pods, "pods", false, "treat dir as a kubelet pod log root")
	cmd.Flags().StringVar(&podPrefix, "pod-prefix", "", "only watch pods whose directory name starts with this namespace prefix")
	return cmd
}
