package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrsinham/dicombatch/internal/discovery"
	"github.com/mrsinham/dicombatch/internal/errlog"
	"github.com/mrsinham/dicombatch/internal/report"
	"github.com/mrsinham/dicombatch/internal/sorter"
)

func newSortCommand(ctx *commandContext) *cobra.Command {
	var (
		source, output, layout, errorLog string
		workers                          int
		link, sniff, followSymlinks      bool
	)

	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Copy or hard-link DICOM files into a patient/study/series tree",
		Long: `Sort reads the header of every DICOM file under --source and places it at
--output/<layout>. The default layout is

  ` + sorter.DefaultLayout + `

Missing tags become "NA". Existing destinations are skipped, so a sort can be
re-run safely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			s := &cfg.Sort
			flags := cmd.Flags()
			if flags.Changed("source") {
				s.Source = source
			}
			if flags.Changed("output") {
				s.Output = output
			}
			if flags.Changed("workers") {
				s.Workers = workers
			}
			if flags.Changed("link") {
				s.Link = link
			}
			if flags.Changed("layout") {
				s.Layout = layout
			}
			if flags.Changed("sniff") {
				s.Filter = filterName(sniff)
			}
			if flags.Changed("follow-symlinks") {
				s.FollowSymlinks = followSymlinks
			}
			if flags.Changed("error-log") {
				s.ErrorLog = errorLog
			}
			if err := cfg.Normalize(); err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}
			log, err := ctx.logger(cmd, cfg.Log)
			if err != nil {
				return err
			}

			lay, _ := sorter.ParseLayout(s.Layout)
			filter, _ := discovery.ParseFilter(s.Filter)
			logPath := s.ErrorLog
			if logPath == "" {
				logPath = filepath.Join(s.Output, errlog.SortLogName)
			}
			elog, err := errlog.Open(logPath)
			if err != nil {
				return err
			}

			bar := newProgress(cmd.ErrOrStderr(), "sorting")
			started := time.Now()
			stats, err := sorter.New(sorter.Options{
				Layout:    lay,
				Link:      s.Link,
				Workers:   s.Workers,
				Discovery: discovery.Options{Filter: filter, FollowSymlinks: s.FollowSymlinks},
				ErrorLog:  elog,
				Progress:  bar.Callback(),
				Logger:    log,
			}).Run(cmd.Context(), s.Source, s.Output)
			bar.Finish()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.SortSummary(stats, time.Since(started)))
			if stats.Failed > 0 {
				fmt.Fprintf(out, "Error log: %s\n", elog.Path())
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&source, "source", "s", "", "Directory to read DICOM files from")
	f.StringVarP(&output, "output", "o", "", "Directory to build the sorted tree in")
	f.IntVarP(&workers, "workers", "w", 0, "Number of parallel workers (default: CPU cores)")
	f.BoolVar(&link, "link", false, "Hard-link files instead of copying (falls back to copy across filesystems)")
	f.StringVar(&layout, "layout", sorter.DefaultLayout, "Destination path template of {Keyword} placeholders")
	f.BoolVar(&sniff, "sniff", false, "Select files by the DICM marker instead of the .dcm name")
	f.BoolVar(&followSymlinks, "follow-symlinks", false, "Descend into symlinked directories")
	f.StringVar(&errorLog, "error-log", "", "Error log path (default: <output>/"+errlog.SortLogName+")")
	return cmd
}

func filterName(sniff bool) string {
	if sniff {
		return string(discovery.FilterSniff)
	}
	return string(discovery.FilterExtension)
}
