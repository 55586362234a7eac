package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/sitesearch/pkg/index"
	"github.com/platinummonkey/sitesearch/pkg/search"
)

func (c *cli) logReport(message string, report index.RebuildReport) {
	c.log.WithFields(logrus.Fields{
		"indexed": report.Indexed,
		"deleted": report.Deleted,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info(message)
}

func (c *cli) installCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Create the search table, index every published document and add full-text indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				report, err := a.indexer.Install(ctx)
				if err != nil {
					return err
				}
				if report == nil {
					c.log.Infof("Table %s already exists", a.store.Table())
				} else {
					c.logReport("Install finished", *report)
				}

				ok, err := a.store.HasFullTextIndexes(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("full-text indexes missing on %s after install", a.store.Table())
				}
				c.log.Infof("Full-text indexes present on %s", a.store.Table())
				return nil
			})
		},
	}
}

func (c *cli) uninstallCommand() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Drop the search table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to drop %s without --yes", c.cfg.Search.Table)
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.indexer.Uninstall(ctx); err != nil {
					return err
				}
				c.log.Infof("Dropped table %s", a.store.Table())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping the search table")
	return cmd
}

func (c *cli) regenerateCommand() *cobra.Command {
	var fromScratch bool
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Re-project every indexed document",
		Long: "Re-projects every document already in the search table, deleting rows whose documents are gone. " +
			"With --from-scratch, every published document of a configured type is indexed first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				report, err := a.indexer.Regenerate(ctx, fromScratch)
				if err != nil {
					return err
				}
				c.logReport("Regenerate finished", report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&fromScratch, "from-scratch", false, "index every published document, not only indexed ones")
	return cmd
}

func (c *cli) indexCommand() *cobra.Command {
	var force, async bool
	cmd := &cobra.Command{
		Use:   "index <document-id>",
		Short: "Index one document after it was saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if async {
					pub, err := a.publisher()
					if err != nil {
						return err
					}
					listeners, err := pub.DocumentSaved(ctx, id, force)
					if err != nil {
						return err
					}
					c.log.Infof("Published save of document %d to %d listeners", id, listeners)
					return nil
				}

				action, err := a.indexer.DocumentModified(ctx, id, force)
				if err != nil {
					return err
				}
				c.log.Infof("Document %d: %s", id, action)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "index even if the document status is not published")
	cmd.Flags().BoolVar(&async, "async", false, "publish a change event instead of indexing in process")
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a permanently deleted document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if async {
					pub, err := a.publisher()
					if err != nil {
						return err
					}
					listeners, err := pub.DocumentDeleted(ctx, id)
					if err != nil {
						return err
					}
					c.log.Infof("Published deletion of document %d to %d listeners", id, listeners)
					return nil
				}

				if err := a.indexer.DocumentDeleted(ctx, id); err != nil {
					return err
				}
				c.log.Infof("Document %d removed from the index", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "publish a change event instead of deleting in process")
	return cmd
}

func (c *cli) searchCommand() *cobra.Command {
	var (
		opts  search.Options
		page  int
		terms []int64
	)
	cmd := &cobra.Command{
		Use:   "search <keywords>",
		Short: "Run a search and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				if page < 1 {
					page = 1
				}
				if opts.PerPage <= 0 {
					opts.PerPage = a.service.DefaultOptions().PerPage
				}
				opts.Offset = (page - 1) * opts.PerPage
				opts.TermIDs = terms

				resp, err := a.service.SearchJSON(ctx, args[0], opts)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			})
		},
	}
	cmd.Flags().StringVar(&opts.DocumentType, "type", "", "restrict to one document type")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 0, "results per page")
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "score", "score, date, title, id or type")
	cmd.Flags().StringVar(&opts.Order, "order", "desc", "asc or desc")
	cmd.Flags().Int64SliceVar(&terms, "terms", nil, "only documents tagged with any of these term ids")
	return cmd
}
