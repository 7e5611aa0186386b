package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hupe1980/dnagram"
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/rowsource"
	"github.com/spf13/cobra"
)

// parseSubject accepts "table.column", or "-" for no subject.
func parseSubject(s string) (dnagram.Subject, error) {
	if s == "-" {
		return dnagram.Subject{}, nil
	}
	return dnagram.ParseSubject(s)
}

func parseTier(s string) (dnagram.CacheTier, error) {
	switch strings.ToLower(s) {
	case "local":
		return dnagram.LocalCache, nil
	case "shared":
		return dnagram.SharedCache, nil
	default:
		return 0, fmt.Errorf("unknown cache tier %q: want local or shared", s)
	}
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var seqType string

	cmd := &cobra.Command{
		Use:   "analyze <table.column> <fasta>",
		Short: "Flag high-frequency keys of a FASTA column and persist them",
		Long: `analyze scans every record of a FASTA file (plain or .gz), counts the rows
each n-gram key occurs in and persists the keys above max_appearance_rate or
max_appearance_nrow as the column's exclusion set. A failed or interrupted
run leaves the previous set untouched.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := dnagram.ParseSubject(args[0])
			if err != nil {
				return err
			}
			typ, err := codec.ParseType(seqType)
			if err != nil {
				return err
			}
			eng, closeFn, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := eng.Analyze(cmd.Context(), subject, eng.FASTASource(args[1], rowsource.WithType(typ)))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "subject:        %s\n", res.Subject)
			fmt.Fprintf(out, "run id:         %s\n", res.RunID)
			fmt.Fprintf(out, "rows:           %d\n", res.TotalRows)
			fmt.Fprintf(out, "distinct keys:  %d\n", res.DistinctKeys)
			fmt.Fprintf(out, "excluded keys:  %d\n", res.ExcludedKeys)
			fmt.Fprintf(out, "workers:        %d\n", res.WorkersUsed)
			fmt.Fprintf(out, "rate:           %g\n", res.RateUsed)
			fmt.Fprintf(out, "nrow threshold: %d\n", res.NrowThresholdUsed)
			fmt.Fprintf(out, "duration:       %s\n", res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&seqType, "type", "dna4", "sequence layout: dna2 or dna4")
	return cmd
}

func newUndoCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <table.column>",
		Short: "Delete a column's exclusion set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := dnagram.ParseSubject(args[0])
			if err != nil {
				return err
			}
			eng, closeFn, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := eng.UndoAnalysis(cmd.Context(), subject)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d record(s), %d key(s), %d byte(s)\n",
				stats.Records, stats.Keys, stats.BytesReclaimed)
			return nil
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List analyzed columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := eng.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBJECT\tK\tOCC BITS\tRATE\tNROW\tROWS\tEXCLUDED\tANALYZED")
			for _, m := range list {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%g\t%d\t%d\t%d\t%s\n",
					m.Subject, m.KmerSize, m.OccurrenceBits, m.MaxAppearanceRate, m.MaxAppearanceNrow,
					m.TotalRows, m.ExcludedKeys, m.AnalyzedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newScoreCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "score <table.column|-> <sequence> <query>",
		Short: "Print the raw and corrected score of a sequence against a query",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := parseSubject(args[0])
			if err != nil {
				return err
			}
			seq, err := codec.Encode(args[1], codec.DNA4)
			if err != nil {
				return err
			}
			eng, closeFn, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			s, err := eng.Score(cmd.Context(), subject, seq, args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "raw=%d corrected=%d\n", s.Raw, s.Corrected)
			return nil
		},
	}
}

func newMatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "match <table.column|-> <query> <sequence>...",
		Short: "Print the sequences that match a query",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := parseSubject(args[0])
			if err != nil {
				return err
			}
			eng, closeFn, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			for _, text := range args[2:] {
				seq, err := codec.Encode(text, codec.DNA4)
				if err != nil {
					return err
				}
				ok, err := eng.Matches(cmd.Context(), subject, seq, args[1])
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintln(out, seq.String())
				}
			}
			return nil
		},
	}
}

func newCacheCmd(g *globalFlags) *cobra.Command {
	var tierName string

	cache := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached exclusion sets",
	}
	cache.PersistentFlags().StringVar(&tierName, "tier", "shared", "cache tier: local or shared")

	withTier := func(run func(cmd *cobra.Command, eng *dnagram.Engine, tier dnagram.CacheTier, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			tier, err := parseTier(tierName)
			if err != nil {
				return err
			}
			eng, closeFn, err := g.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return run(cmd, eng, tier, args)
		}
	}

	cache.AddCommand(
		&cobra.Command{
			Use:   "load <table.column>",
			Short: "Load a column's exclusion set into a tier",
			Args:  cobra.ExactArgs(1),
			RunE: withTier(func(cmd *cobra.Command, eng *dnagram.Engine, tier dnagram.CacheTier, args []string) error {
				subject, err := dnagram.ParseSubject(args[0])
				if err != nil {
					return err
				}
				n, err := eng.LoadCache(cmd.Context(), tier, subject)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d key(s) into the %s tier\n", n, tier)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "free <table.column>",
			Short: "Drop a column's exclusion set from a tier",
			Args:  cobra.ExactArgs(1),
			RunE: withTier(func(cmd *cobra.Command, eng *dnagram.Engine, tier dnagram.CacheTier, args []string) error {
				subject, err := dnagram.ParseSubject(args[0])
				if err != nil {
					return err
				}
				n, err := eng.FreeCache(tier, subject)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "freed %d key(s) from the %s tier\n", n, tier)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "free-all",
			Short: "Drop every exclusion set from a tier",
			Args:  cobra.NoArgs,
			RunE: withTier(func(cmd *cobra.Command, eng *dnagram.Engine, tier dnagram.CacheTier, _ []string) error {
				n, err := eng.FreeAllCaches(tier)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "freed %d key(s) from the %s tier\n", n, tier)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print cache statistics",
			Args:  cobra.NoArgs,
			RunE: withTier(func(cmd *cobra.Command, eng *dnagram.Engine, _ dnagram.CacheTier, _ []string) error {
				st, err := eng.CacheStats()
				if err != nil {
					return err
				}
				printCacheStats(cmd.OutOrStdout(), st)
				return nil
			}),
		},
	)
	return cache
}

func printCacheStats(w io.Writer, st dnagram.CacheStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "local\tsubjects=%d\tentries=%d\tbytes=%d\n",
		st.Exclusion.Local.Subjects, st.Exclusion.Local.Entries, st.Exclusion.Local.Bytes)
	fmt.Fprintf(tw, "shared\tattached=%d\tentries=%d\tmapped=%d\n",
		st.Exclusion.Shared.Attached, st.Exclusion.Shared.Entries, st.Exclusion.Shared.MappedBytes)
	for _, seg := range st.Exclusion.Shared.Segments {
		fmt.Fprintf(tw, "  %s\tentries=%d\trefs=%d\tattached=%t\n", seg.Subject, seg.Entries, seg.Refs, seg.Attached)
	}
	for _, c := range []struct {
		name string
		hits int64
		miss int64
		size int
		cap  int
	}{
		{"actual_min_score", st.Aux.ActualMinScore.Hits, st.Aux.ActualMinScore.Misses, st.Aux.ActualMinScore.Entries, st.Aux.ActualMinScore.Capacity},
		{"raw_score", st.Aux.RawScore.Hits, st.Aux.RawScore.Misses, st.Aux.RawScore.Entries, st.Aux.RawScore.Capacity},
		{"query_pattern", st.Aux.QueryPattern.Hits, st.Aux.QueryPattern.Misses, st.Aux.QueryPattern.Entries, st.Aux.QueryPattern.Capacity},
	} {
		fmt.Fprintf(tw, "%s\tentries=%d/%d\thits=%d\tmisses=%d\n", c.name, c.size, c.cap, c.hits, c.miss)
	}
	fmt.Fprintf(tw, "memory\tused=%d\tlimit=%d\n", st.MemoryUsage, st.MemoryLimit)
	_ = tw.Flush()
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
