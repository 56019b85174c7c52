package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gamma-omg/rag-spo/api"
	"github.com/gamma-omg/rag-spo/docsource"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rag-spo",
		Short:         "Question answering over SharePoint documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "cfg/config.yaml", "Configuration file")

	root.AddCommand(serveCmd(), indexCmd(), searchCmd(), sitesCmd(), mcpCmd(), watchCmd())
	return root
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.prepare(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              a.cfg.ServerAddr,
				Handler:           api.NewServer(api.Config{Demo: a.cfg.DemoMode, DefaultTopK: a.cfg.TopK}, a.log.With("component", "api"), a.searcher, a.indexer, a.source).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errs := make(chan error, 1)
			go func() {
				a.log.Info("http server started", "addr", srv.Addr, "demo_mode", a.cfg.DemoMode)
				errs <- srv.ListenAndServe()
			}()

			select {
			case err := <-errs:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("http server failed: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			a.log.Info("shutting down http server")
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func indexCmd() *cobra.Command {
	var siteID string
	var force bool

	cmd := &cobra.Command{
		Use:   "index [document-id]",
		Short: "Index one document, or every document of a site",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.prepare(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				res, err := a.indexer.IndexAll(ctx, siteID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "indexed %d documents, %d chunks\n", res.TotalDocuments, res.TotalChunks)
				return nil
			}

			index := a.indexer.IndexDocument
			if force {
				index = a.indexer.Reindex
			}
			res, err := index(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "indexed %s: %d chunks\n", res.DocumentID, res.ChunksIndexed)
			return nil
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "Site to index, the configured site when empty")
	cmd.Flags().BoolVar(&force, "force", false, "Drop stored chunks of the document before indexing")
	return cmd
}

func searchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("top-k") {
				if err := checkTopK(topK); err != nil {
					return err
				}
			}

			a, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.prepare(ctx); err != nil {
				return err
			}

			if !cmd.Flags().Changed("top-k") {
				topK = a.cfg.TopK
			}

			res, err := a.searcher.AnswerWithSources(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", res.Answer)
			if len(res.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
			}
			for i, s := range res.Sources {
				fmt.Fprintf(out, "%d. %s (score %.3f)\n   %s\n", i+1, s.FileTitle, s.Score, s.DownloadURL)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (1-50), the configured top_k when unset")
	return cmd
}

func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List SharePoint sites visible to the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			graph, ok := a.source.(*docsource.Graph)
			if !ok {
				return errors.New("listing sites requires the graph source")
			}

			sites, err := graph.Sites(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range sites {
				fmt.Fprintf(out, "%s\t%s\t%s\n", s.ID, s.DisplayName, s.WebURL)
			}
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search and index tools over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.prepare(cmd.Context()); err != nil {
				return err
			}

			srv := NewRagServer(a.searcher, a.indexer, a.cfg.TopK)
			sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", a.cfg.MCPAddr)))
			a.log.Info("mcp server started", "addr", a.cfg.MCPAddr)
			return sse.Start(a.cfg.MCPAddr)
		},
	}
}

func watchCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Index a local folder and keep it in sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgPath, func(c *Config) {
				c.Source = sourceFilesystem
				if root != "" {
					c.DocRoot = root
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			folder, ok := a.source.(*docsource.Filesystem)
			if !ok {
				return errors.New("watching requires the filesystem source")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.prepare(ctx); err != nil {
				return err
			}

			w := NewWatcher(a.log.With("component", "watcher"), folder, a.indexer,
				time.Duration(a.cfg.Watch.DebounceMs)*time.Millisecond)
			if err := w.Sync(ctx); err != nil {
				return err
			}
			if err := w.Watch(ctx); err != nil {
				return err
			}

			a.log.Info("watching folder", "root", folder.Root())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Folder to watch, doc_root when empty")
	return cmd
}
