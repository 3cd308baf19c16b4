// Command ftsctl is the CLI front-end collaborator: serve, insert,
// search, get, delete, stats, and import-wiki subcommands over the
// Engine library surface (§6, §12). Every subcommand but serve opens the
// engine directly against the local data directory rather than
// proxying through HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrowgate/ftsengine/internal/engine"
	"github.com/harrowgate/ftsengine/internal/httpapi"
	"github.com/harrowgate/ftsengine/internal/wikiimport"
	"github.com/harrowgate/ftsengine/pkg/types"
)

var dataDir string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ftsctl",
		Short: "ftsctl drives the full-text search engine",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "engine storage directory")

	root.AddCommand(
		newServeCmd(),
		newInsertCmd(),
		newSearchCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newStatsCmd(),
		newImportWikiCmd(),
	)
	return root
}

func openEngine() (*engine.Engine, error) {
	return engine.Open(dataDir, slog.Default())
}

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP front-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			cfg := types.DefaultConfig().Server
			cfg.Host = host
			cfg.Port = port

			srv := httpapi.New(e, cfg, slog.Default())

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", types.DefaultConfig().Server.Host, "listen host")
	cmd.Flags().IntVar(&port, "port", types.DefaultConfig().Server.Port, "listen port")
	return cmd
}

func newInsertCmd() *cobra.Command {
	var id, title, content, url, file string

	cmd := &cobra.Command{
		Use:   "insert",
		Short: "insert or replace a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				var doc types.Document
				if err := json.Unmarshal(data, &doc); err != nil {
					return err
				}
				return e.UpsertDocument(doc)
			}

			return e.UpsertDocument(types.Document{ID: id, Title: title, Content: content, URL: url})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "document id")
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&content, "content", "", "document content")
	cmd.Flags().StringVar(&url, "url", "", "document url")
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON document, overrides the other flags")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var limit, offset int
	var mode string
	var ranked bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "search the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			opts := types.SearchOptions{Limit: limit, Offset: offset, Mode: types.SearchMode(mode), Ranked: ranked}
			results, err := e.Search(args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	defaults := types.DefaultSearchOptions()
	cmd.Flags().IntVar(&limit, "limit", defaults.Limit, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", defaults.Offset, "pagination offset")
	cmd.Flags().StringVar(&mode, "mode", string(defaults.Mode), "AND or OR")
	cmd.Flags().BoolVar(&ranked, "ranked", defaults.Ranked, "rank by BM25")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "fetch a document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			doc, ok, err := e.GetDocument(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("document %q not found", args[0])
			}
			return printJSON(doc)
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "delete a document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			deleted, err := e.DeleteDocument(args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("document %q not found", args[0])
			}
			fmt.Println("deleted")
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			stats, err := e.Stats()
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func newImportWikiCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import-wiki [dump.xml]",
		Short: "bulk-import a MediaWiki XML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := wikiimport.Import(e, args[0], wikiimport.Options{BatchSize: batchSize}, slog.Default())
			if err != nil {
				return err
			}
			fmt.Printf("imported %d pages\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 200, "documents per storage batch")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
