package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/arbor"
	"github.com/KilimcininKorOglu/arbor/internal/config"
)

func (c *cli) createCmd() *cobra.Command {
	var (
		configFile  string
		backend     string
		compression string
		revisioning string
		hashing     string
	)
	cmd := &cobra.Command{
		Use:   "create <dir>",
		Short: "Create an empty store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				loaded, err := config.LoadConfig(configFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			flags := cmd.Flags()
			if flags.Changed("backend") {
				cfg.Storage.Backend = backend
			}
			if flags.Changed("compression") {
				cfg.Storage.Compression = compression
			}
			if flags.Changed("revisioning") {
				cfg.Revisioning.Policy = revisioning
			}
			if flags.Changed("hashing") {
				cfg.Hashing.Policy = hashing
			}

			st, err := arbor.Create(args[0], cfg, arbor.WithLogger(c.logger()))
			if err != nil {
				return err
			}
			defer arbor.Close(st.Location())

			id, err := st.ID()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Created store %s\n", st.Location())
			fmt.Fprintf(c.stdout, "  ID:          %s\n", id)
			fmt.Fprintf(c.stdout, "  Backend:     %s\n", cfg.Storage.Backend)
			fmt.Fprintf(c.stdout, "  Revisioning: %s\n", cfg.Revisioning.Policy)
			fmt.Fprintf(c.stdout, "  Hashing:     %s\n", cfg.Hashing.Policy)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "configuration file to start from")
	f.StringVar(&backend, "backend", "file", "page store backend: file, badger")
	f.StringVar(&compression, "compression", "none", "page compression: none, zstd")
	f.StringVar(&revisioning, "revisioning", "incremental", "revisioning policy: incremental, differential, none")
	f.StringVar(&hashing, "hashing", "rolling", "hashing policy: rolling, postorder, none")
	return cmd
}

func (c *cli) infoCmd() *cobra.Command {
	var revisions bool
	cmd := &cobra.Command{
		Use:   "info <dir>",
		Short: "Show store configuration and revisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := arbor.Open(args[0], arbor.WithLogger(c.logger()))
			if err != nil {
				return err
			}
			defer arbor.Close(st.Location())

			id, err := st.ID()
			if err != nil {
				return err
			}
			sess, err := st.Session()
			if err != nil {
				return err
			}
			cfg := st.Config()
			last := sess.LastCommittedRevision()

			fmt.Fprintf(c.stdout, "Store %s\n", st.Location())
			fmt.Fprintf(c.stdout, "  ID:            %s\n", id)
			fmt.Fprintf(c.stdout, "  Backend:       %s (compression %s)\n", cfg.Storage.Backend, cfg.Storage.Compression)
			fmt.Fprintf(c.stdout, "  Revisioning:   %s (milestone %d)\n", cfg.Revisioning.Policy, cfg.Revisioning.Milestone)
			fmt.Fprintf(c.stdout, "  Hashing:       %s\n", cfg.Hashing.Policy)
			fmt.Fprintf(c.stdout, "  Last revision: %d\n", last)

			if !revisions {
				return nil
			}
			fmt.Fprintln(c.stdout)
			fmt.Fprintf(c.stdout, "%-10s %-12s %s\n", "REVISION", "MAX NODE KEY", "COMMITTED")
			for rev := int64(0); rev <= last; rev++ {
				info, err := sess.RevisionInfo(rev)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "%-10d %-12d %s\n", info.Revision, info.MaxNodeKey, info.Committed.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&revisions, "revisions", false, "list every revision")
	return cmd
}

func (c *cli) verifyCmd() *cobra.Command {
	var (
		revision int64
		jobs     int
	)
	cmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Recompute node hashes and compare them with the stored ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeStore, err := c.openSession(args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			from, to := int64(0), sess.LastCommittedRevision()
			if revision >= 0 {
				from, to = revision, revision
			}

			hashes := make([]uint64, to-from+1)
			g, _ := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(jobs, 1))
			for rev := from; rev <= to; rev++ {
				rev := rev
				g.Go(func() error {
					h, err := sess.VerifyHashes(rev)
					if err != nil {
						return fmt.Errorf("revision %d: %w", rev, err)
					}
					hashes[rev-from] = h
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for i, h := range hashes {
				fmt.Fprintf(c.stdout, "revision %d: ok %016x\n", from+int64(i), h)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&revision, "revision", -1, "verify only this revision")
	cmd.Flags().IntVar(&jobs, "jobs", 4, "revisions verified in parallel")
	return cmd
}

func (c *cli) dumpCmd() *cobra.Command {
	var (
		revision   int64
		showHashes bool
	)
	cmd := &cobra.Command{
		Use:   "dump <dir>",
		Short: "Print the tree of a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeStore, err := c.openSession(args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			var rtx *arbor.ReadTxn
			if revision < 0 {
				rtx, err = sess.BeginReadTxn(ctx)
			} else {
				rtx, err = sess.BeginReadTxnAt(ctx, revision)
			}
			if err != nil {
				return err
			}
			defer rtx.Close()

			return rtx.Descendants(func(n arbor.NodeInfo) error {
				line := strings.Repeat("  ", n.Depth) + describe(n)
				if showHashes {
					line = fmt.Sprintf("%s  [%d %016x]", line, n.Key, n.Hash)
				}
				_, err := fmt.Fprintln(c.stdout, line)
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&revision, "revision", -1, "revision to print (default latest)")
	cmd.Flags().BoolVar(&showHashes, "hashes", false, "show node keys and hashes")
	return cmd
}

// describe renders one node in an XML-like notation.
func describe(n arbor.NodeInfo) string {
	switch n.Kind {
	case arbor.KindDocumentRoot:
		return "/"
	case arbor.KindElement:
		return "<" + n.Name + ">"
	case arbor.KindText:
		return fmt.Sprintf("%q", n.Value)
	case arbor.KindAttribute:
		return fmt.Sprintf("@%s=%q", n.Name, n.Value)
	case arbor.KindNamespace:
		if n.Name == "" {
			return fmt.Sprintf("xmlns=%q", n.Value)
		}
		return fmt.Sprintf("xmlns:%s=%q", n.Name, n.Value)
	default:
		return n.Kind.String()
	}
}
