package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"thesis_generator/config"
	"thesis_generator/exporter"
	"thesis_generator/generator"
	"thesis_generator/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "thesis_generator",
		Short:         "Generate academic thesis drafts with an OpenAI-compatible model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json / config.yaml (env and defaults when empty)")

	root.AddCommand(newServeCmd(&configPath), newGenerateCmd(&configPath), newReviewCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.LogMode == "prod" || a.cfg.LogMode == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv, err := server.New(a.agent, server.Options{
				RequestTimeout:  a.cfg.Server.RequestTimeout(),
				SessionCapacity: a.cfg.Server.SessionCapacity,
				CORSOrigins:     a.cfg.Server.CORSOrigins,
				TrustedProxies:  a.cfg.Server.TrustedProxies,
				Log:             a.log,
			})
			if err != nil {
				return err
			}

			listen := a.cfg.ServerAddr
			if addr != "" {
				listen = addr
			}
			return listenAndServe(ctx, &http.Server{Addr: listen, Handler: srv.Routes()}, a.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides server_addr)")
	return cmd
}

func listenAndServe(ctx context.Context, hs *http.Server, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting web server", zap.String("addr", hs.Addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var (
		req    generator.Request
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one thesis and print or save it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.agent.Generate(cmd.Context(), req, "cli")
			if err != nil {
				var gerr *generator.GenerationError
				if errors.As(err, &gerr) {
					a.log.Debug("generation failed", zap.Error(err))
					return errors.New(gerr.UserMessage())
				}
				return err
			}
			body, err := exporter.Render(doc, f)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, body)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&req.Topic, "topic", "", "thesis topic (10-500 characters)")
	fl.StringVar((*string)(&req.AcademicLevel), "level", string(generator.LevelS1), "academic level: S1, S2 or S3")
	fl.StringVar((*string)(&req.WritingStyle), "style", string(generator.StyleFormal), "writing style: formal or informal")
	fl.StringVar((*string)(&req.Language), "language", string(generator.LanguageIndonesian), "language: id or en")
	fl.StringVar((*string)(&req.CitationStyle), "citation", string(generator.CitationAPA), "citation style: APA, MLA or IEEE")
	fl.StringVar(&format, "format", "markdown", "output format: markdown, html or doc")
	fl.StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newReviewCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Ask the model for revision suggestions on a thesis text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				data []byte
				err  error
			)
			if file != "" {
				data, err = os.ReadFile(file)
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			if strings.TrimSpace(string(data)) == "" {
				return errors.New("nothing to review; pass --file or pipe text on stdin")
			}

			a, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			suggestions, err := a.agent.RevisionSuggestions(cmd.Context(), string(data))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range suggestions {
				fmt.Fprintf(w, "- %s\n", s)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to review (stdin when empty)")
	return cmd
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg)
}

func writeOutput(stdout io.Writer, path string, body []byte) error {
	if path == "" {
		_, err := stdout.Write(body)
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}
