package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"marketing_post_refiner/generator"
	"marketing_post_refiner/mcpserver"
	"marketing_post_refiner/report"
	"marketing_post_refiner/research"
	"marketing_post_refiner/server"
	"marketing_post_refiner/store"
	"marketing_post_refiner/styleguide"
	"marketing_post_refiner/trace"
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Generate one post",
	Long:  "Run the outline, write, review and rewrite loop for a topic and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs, newest first",
	RunE:  runHistory,
}

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Write Markdown and HTML reports for a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var styleGuidesCmd = &cobra.Command{
	Use:     "styleguides",
	Aliases: []string{"brands"},
	Short:   "List available brand style guidelines",
	RunE:    runStyleGuides,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the generator as MCP tools over stdio",
	RunE:  runMCP,
}

func init() {
	generateCmd.Flags().StringP("tone", "t", generator.DefaultTone, "writing tone")
	generateCmd.Flags().IntP("max-length", "l", generator.DefaultMaxLength, "maximum post length in characters")
	generateCmd.Flags().StringP("style-guide", "s", "", "brand style guideline id")
	generateCmd.Flags().Bool("no-research", false, "skip background research")
	generateCmd.Flags().Bool("json", false, "print the full result as JSON")
	generateCmd.Flags().Bool("report", false, "also write a report to reports.dir")

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")

	historyCmd.Flags().IntP("limit", "n", 20, "number of runs to show")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	tone, _ := cmd.Flags().GetString("tone")
	maxLength, _ := cmd.Flags().GetInt("max-length")
	guideID, _ := cmd.Flags().GetString("style-guide")
	noResearch, _ := cmd.Flags().GetBool("no-research")
	asJSON, _ := cmd.Flags().GetBool("json")
	withReport, _ := cmd.Flags().GetBool("report")

	req, err := generator.GenerationRequest{Topic: args[0], Tone: tone, MaxLength: maxLength, StyleGuideID: guideID}.Normalize()
	if err != nil {
		return err
	}
	agent, err := a.agent()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guide, err := styleguide.Resolve(a.guides(), req.StyleGuideID)
	if err != nil {
		return err
	}
	if guide != nil {
		req.StyleGuideID = guide.ID
	}
	background, err := research.Background(ctx, a.searcher(!noResearch), req.Topic)
	if err != nil {
		a.logger.Warnf("research failed, continuing without: %v", err)
	}

	rec := trace.NewRecorder(trace.WithCostModel(a.cfg.CostModel()))
	if !asJSON {
		rec.Subscribe(func(s trace.Step) { printStep(os.Stderr, s) })
	}
	logger := a.logger.Named("cli")
	logger.Infof("generating topic=%q tone=%s max_length=%d", req.Topic, req.Tone, req.MaxLength)
	res, err := agent.Run(ctx, generator.Input{Request: req, Background: background, Guideline: guide}, rec)
	if err != nil {
		return err
	}

	record := store.NewRecord(req, res)
	if st, err := a.openStore(); err != nil {
		logger.Warnf("history disabled: %v", err)
	} else {
		if err := st.Save(ctx, record); err != nil {
			logger.Warnf("save run: %v", err)
		}
		st.Close()
	}
	if withReport {
		paths, err := report.New(a.cfg.Reports.Dir, a.logger).Publish(ctx, report.Run{ID: record.ID, Request: req, Result: res})
		if err != nil {
			logger.Warnf("report: %v", err)
		} else {
			logger.Infof("report written to %s", paths.HTML)
		}
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"id": record.ID, "request": req, "result": res})
	}
	printResult(cmd.OutOrStdout(), record.ID, res)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	agent, err := a.agent()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guides := a.guides()
	if a.cfg.StyleGuides.Watch {
		go func() {
			if err := guides.Watch(ctx); err != nil {
				a.logger.Warnf("style guide watch stopped: %v", err)
			}
		}()
	}

	srv, err := server.New(agent, server.Options{
		Guides:         guides,
		Searcher:       research.Simulated{},
		History:        st,
		Reports:        report.New(a.cfg.Reports.Dir, a.logger),
		CostModel:      a.cfg.CostModel(),
		RequestTimeout: time.Duration(a.cfg.Server.RequestTimeoutSec) * time.Second,
		Logger:         a.logger,
		MaxSessions:    a.cfg.Server.MaxSessions,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	listen := a.cfg.Server.Addr
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		listen = addr
	}
	if listen == "" {
		listen = ":8080"
	}
	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("Starting web server on %s", listen)
		errCh <- httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Infof("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	list, err := st.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), list)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	rec, err := st.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	paths, err := report.New(a.cfg.Reports.Dir, a.logger).Publish(cmd.Context(), report.Run{ID: rec.ID, Request: rec.Request, Result: rec.Result})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), paths.Markdown)
	fmt.Fprintln(cmd.OutOrStdout(), paths.HTML)
	return nil
}

func runStyleGuides(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	ids, err := a.guides().List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no style guidelines in %s\n", a.cfg.StyleGuides.Dir)
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	agent, err := a.agent()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mcpserver.RunStdio(ctx, &mcpserver.Tools{
		Agent:     agent,
		Guides:    a.guides(),
		Searcher:  research.Simulated{},
		History:   st,
		CostModel: a.cfg.CostModel(),
		Logger:    a.logger,
	}, version)
}
