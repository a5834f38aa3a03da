package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knowledgeops/kbmigrate/internal/config"
	"github.com/knowledgeops/kbmigrate/internal/logger"
	"github.com/knowledgeops/kbmigrate/internal/platform"
)

var (
	configPath string
	logLevel   string
	prettyLog  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kbmigrate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbmigrate",
		Short: "SharePoint to ServiceNow knowledge-base migration",
		Long: `kbmigrate moves SharePoint site pages into a ServiceNow knowledge base in
resumable stages: scrape pages and images, upload images as attachments,
rewrite the article markup, create and update the articles, and render a
review report. Every stage reads and writes JSON snapshots, so an
interrupted run picks up where it left off.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&prettyLog, "pretty-log", false, "Human-readable colored log output")
	cmd.AddCommand(
		newScrapeCmd(),
		newDownloadCmd(),
		newUploadCmd(),
		newRewriteCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newReportCmd(),
	)
	return cmd
}

// app bundles the config and logger every stage command starts from.
type app struct {
	cfg *config.Config
	log logger.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if prettyLog {
		cfg.PrettyLog = true
	}
	return &app{cfg: cfg, log: logger.New(cfg.LogLevel, cfg.PrettyLog)}, nil
}

// sharePoint wires the Graph API side: token source, retrying client, site
// binding. Fails fast when the source credentials are missing.
func (a *app) sharePoint() (*platform.SharePoint, error) {
	if err := a.cfg.ValidateSource(); err != nil {
		return nil, err
	}
	sp := a.cfg.SharePoint
	ts := platform.NewTokenSource(
		"https://login.microsoftonline.com/"+sp.TenantID,
		sp.ClientID, sp.ClientSecret, "", a.cfg.RequestTimeout.Std(),
	)
	client := platform.NewClient(sp.GraphBaseURL, platform.BearerAuth(ts), a.cfg.RequestTimeout.Std(), a.cfg.MaxAttempts, a.log)
	return platform.NewSharePoint(client, sp.SiteID, a.log), nil
}

// serviceNow wires the knowledge-base side behind the API-key header.
func (a *app) serviceNow() (*platform.ServiceNow, error) {
	if err := a.cfg.ValidateTarget(); err != nil {
		return nil, err
	}
	sn := a.cfg.ServiceNow
	client := platform.NewClient(sn.BaseURL, platform.HeaderAuth("x-sn-apikey", sn.APIKey), a.cfg.RequestTimeout.Std(), a.cfg.MaxAttempts, a.log)
	return platform.NewServiceNow(client, sn.KBPath, a.log), nil
}
