// Command repoget fetches a repository's content files through a
// mirror-aware, checksum-verifying downloader.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"github.com/mirrorctl/repoget/internal/mirror"
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	flagConfig       string
	flagLogLevel     string
	flagQuiet        bool
	flagDryRun       bool
	flagDestDir      string
	flagRepoType     string
	flagMetalinkURL  string
	flagMirrorlist   string
	flagFastestMirror bool
	flagURLs         []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "repoget",
		Short: "Mirror-aware repository download client",
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to TOML configuration file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress progress output")
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "accepted but has no effect: commands run exactly as without it")

	root.AddCommand(newGetCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newMirrorsCmd())
	root.AddCommand(newFastestMirrorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func loadHandle(args []string) (*mirror.Handle, error) {
	h := mirror.NewHandle()

	if flagConfig != "" {
		cfg := mirror.NewConfig()
		if _, err := toml.DecodeFile(flagConfig, cfg); err != nil {
			return nil, errors.Wrap(err, "decoding config file")
		}
		if err := cfg.ApplyEnvironmentVariables(); err != nil {
			return nil, err
		}
		h.DestDir = cfg.DestDir
		h.MaxParallelDownloads = cfg.MaxConns
		h.TLS = cfg.TLS
		if err := cfg.Log.Apply(); err != nil {
			return nil, err
		}
	} else {
		lc := mirror.LogConfig{Level: flagLogLevel}
		if err := lc.Apply(); err != nil {
			return nil, err
		}
	}

	h.URLs = append(h.URLs, flagURLs...)
	h.URLs = append(h.URLs, args...)
	h.MetalinkURL = flagMetalinkURL
	h.MirrorlistURL = flagMirrorlist
	h.FastestMirror = flagFastestMirror
	if flagDestDir != "" {
		h.DestDir = flagDestDir
	}
	if flagRepoType != "" {
		h.RepoType = flagRepoType
	}
	return h, nil
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [urls...]",
		Short: "Download a repository's manifest and content files",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHandle(args)
			if err != nil {
				return err
			}

			var bar *pb.ProgressBar
			if !flagQuiet {
				h.ProgressCB = func(_ any, total, downloaded int64) bool {
					if bar == nil && total > 0 {
						bar = pb.Full.Start64(total)
					}
					if bar != nil {
						bar.SetCurrent(downloaded)
					}
					return false
				}
			}

			res, err := mirror.Run(cmd.Context(), h)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}
			fmt.Printf("downloaded %d targets from %d mirrors\n", len(res.Targets), len(res.MirrorsUsed))
			if !res.Succeeded() {
				return errors.Newf("%d targets failed", len(res.FailedTargets()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagDestDir, "destdir", "", "destination directory")
	cmd.Flags().StringVar(&flagRepoType, "repo-type", "", "repository type")
	cmd.Flags().StringVar(&flagMetalinkURL, "metalink-url", "", "metalink URL")
	cmd.Flags().StringVar(&flagMirrorlist, "mirrorlist-url", "", "mirror-list URL")
	cmd.Flags().BoolVar(&flagFastestMirror, "fastest-mirror", false, "probe and reorder mirrors by latency")
	cmd.Flags().StringArrayVar(&flagURLs, "url", nil, "explicit base mirror URL (repeatable)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [urls...]",
		Short: "Validate configuration and resolve the mirror list without downloading",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHandle(args)
			if err != nil {
				return err
			}
			if err := h.Check(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ml, err := mirror.AcquireMirrors(ctx, h)
			if err != nil {
				return err
			}
			fmt.Printf("%d mirrors configured\n", ml.Len())
			return nil
		},
	}
}

func newMirrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrors [urls...]",
		Short: "Print the resolved mirror list without downloading",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHandle(args)
			if err != nil {
				return err
			}
			h.FetchMirrors = true
			res, err := mirror.Perform(cmd.Context(), h)
			if err != nil {
				return err
			}
			for _, u := range res.MirrorsUsed {
				fmt.Println(u)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagMetalinkURL, "metalink-url", "", "metalink URL")
	cmd.Flags().StringVar(&flagMirrorlist, "mirrorlist-url", "", "mirror-list URL")
	cmd.Flags().StringArrayVar(&flagURLs, "url", nil, "explicit base mirror URL (repeatable)")
	return cmd
}

func newFastestMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fastest-mirror [urls...]",
		Short: "Probe mirror latency and print the reordered mirror list",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := loadHandle(args)
			if err != nil {
				return err
			}
			h.FastestMirror = true
			h.FetchMirrors = true
			res, err := mirror.Perform(cmd.Context(), h)
			if err != nil {
				return err
			}
			for _, u := range res.MirrorsUsed {
				fmt.Println(u)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&flagURLs, "url", nil, "explicit base mirror URL (repeatable)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print repoget's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
