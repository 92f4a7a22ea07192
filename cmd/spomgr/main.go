package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/koltyakov/gosip/api"
	"github.com/spf13/cobra"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/application"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/config"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spclient"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/spcollect"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/infrastructure/store"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/logging"
	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/spauth"
)

func main() {
	// Load .env if present; environment wins over file values.
	_ = godotenv.Load()

	cfg := config.LoadAppConfig()
	logger := logging.NewLogger(cfg.Logging)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(ctx, cfg, logger)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "spomgr",
		Short:         "SharePoint Online administration and migration reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReconcileCmd(ctx, cfg, logger))
	root.AddCommand(newPermissionsCmd(ctx, cfg, logger))
	root.AddCommand(newNavCmd(ctx, logger))
	return root
}

// consoleProgress writes run progress to stdout while structured logs go to
// the configured logging output.
type consoleProgress struct{}

func (consoleProgress) ReportProgress(stage, description string, percentage int) {
	fmt.Printf("[%s] %s\n", stage, description)
}

func (consoleProgress) ReportPairDone(pair task.SitePair, status task.PairStatus, pairsDone, pairsTotal int) {
	fmt.Printf("(%d/%d) %s: %s\n", pairsDone, pairsTotal, pair, status)
}

func newReconcileCmd(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) *cobra.Command {
	var (
		tasksPath string
		resume    bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile source sites against their migration targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskFile, err := config.LoadTaskFile(tasksPath)
			if err != nil {
				return err
			}
			creds, err := store.LoadCredentialStore(cfg.CredentialsPath)
			if err != nil {
				return err
			}
			resultStore, err := store.NewFileStore(cfg.ResultsDir, logger)
			if err != nil {
				return err
			}

			params := taskFile.Parameters
			if params.RequestsPerSecond == 0 {
				params.RequestsPerSecond = cfg.RequestsPerSecond
			}

			factory := application.NewGosipSessionFactory(creds, params, logger)
			worker := application.NewReconcileWorker(factory, params, consoleProgress{}, logger)
			orchestrator := application.NewTaskOrchestrator(worker, resultStore, factory, consoleProgress{}, logger)

			result, runErr := orchestrator.Run(ctx, taskFile.Pairs, resume)
			printRunSummary(result)
			return runErr
		},
	}

	cmd.Flags().StringVar(&tasksPath, "tasks", "tasks.yaml", "YAML task file with site pairs and parameters")
	cmd.Flags().BoolVar(&resume, "resume", false, "carry forward pairs that succeeded in the previous run")
	return cmd
}

func printRunSummary(result *task.TaskRunResult) {
	if result == nil {
		return
	}
	fmt.Printf("\nRun %s finished: %s\n", result.RunID, result.Status)
	if result.ResumedFrom != "" {
		fmt.Printf("Resumed from run %s\n", result.ResumedFrom)
	}
	for _, pr := range result.Pairs {
		switch pr.Status {
		case task.PairStatusSucceeded:
			fmt.Printf("  %-9s %s  found=%d size_issues=%d source_only=%d target_only=%d completeness=%.1f%%\n",
				pr.Status, pr.Pair, pr.Counts.Found, pr.Counts.SizeIssues, pr.Counts.SourceOnly, pr.Counts.TargetOnly, pr.CompletenessPercent)
		default:
			fmt.Printf("  %-9s %s  %s\n", pr.Status, pr.Pair, pr.Error)
		}
	}
	if result.ThrottleRetries > 0 {
		fmt.Printf("Throttle retries: %d\n", result.ThrottleRetries)
	}
}

func newPermissionsCmd(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) *cobra.Command {
	var (
		siteURL          string
		auditLists       bool
		auditItems       bool
		includeInherited bool
	)

	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Audit permission assignments of a single site",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, params, err := openSite(cfg, siteURL, logger)
			if err != nil {
				return err
			}

			collector := spcollect.NewCollector(session.Client, session.Fetcher, session.Checker, logger)
			assignments, err := collector.Collect(ctx, spcollect.Scope{
				Site:             true,
				Lists:            auditLists,
				Items:            auditItems,
				IncludeInherited: includeInherited,
				PageSize:         params.PageSize,
				CheckBatchSize:   params.CheckBatchSize,
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(assignments)
		},
	}

	cmd.Flags().StringVar(&siteURL, "site", "", "site URL to audit (defaults to SP_SITE_URL)")
	cmd.Flags().BoolVar(&auditLists, "lists", true, "audit document library permissions")
	cmd.Flags().BoolVar(&auditItems, "items", false, "audit item-level permissions (uniquely secured items only)")
	cmd.Flags().BoolVar(&includeInherited, "include-inherited", false, "also record inherited site and list assignments")
	return cmd
}

func newNavCmd(ctx context.Context, logger *logging.Logger) *cobra.Command {
	var siteURL string

	cmd := &cobra.Command{
		Use:   "nav",
		Short: "Inspect and adjust site navigation settings",
	}
	cmd.PersistentFlags().StringVar(&siteURL, "site", "", "site URL (defaults to SP_SITE_URL)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the navigation settings of a site",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openSiteClient(siteURL, logger)
			if err != nil {
				return err
			}
			settings, err := client.GetNavigationSettings(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("QuickLaunchEnabled: %t\nTreeViewEnabled:    %t\n", settings.QuickLaunchEnabled, settings.TreeViewEnabled)
			return nil
		},
	}

	var enabled bool
	set := &cobra.Command{
		Use:   "set-quicklaunch",
		Short: "Enable or disable the quick launch navigation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openSiteClient(siteURL, logger)
			if err != nil {
				return err
			}
			return client.SetQuickLaunchEnabled(ctx, enabled)
		},
	}
	set.Flags().BoolVar(&enabled, "enabled", true, "desired quick launch state")

	cmd.AddCommand(show, set)
	return cmd
}

// openSite builds a full session (client, fetcher, flag checker) for one
// site using env-based credentials.
func openSite(cfg *config.AppConfig, siteURL string, logger *logging.Logger) (*application.Session, *task.TaskParameters, error) {
	authCfg, err := spauth.FromEnv(siteURL)
	if err != nil {
		return nil, nil, err
	}
	authClient, err := spauth.NewClient(authCfg)
	if err != nil {
		return nil, nil, err
	}

	params := task.DefaultParameters()
	params.RequestsPerSecond = cfg.RequestsPerSecond

	exec := spclient.NewThrottleExecutor(authClient, spclient.DefaultRetryPolicy(params.MaxRetries), params.RequestsPerSecond, logger)
	session := &application.Session{
		Client:  spclient.NewGosipSiteClient(api.NewSP(authClient), authClient, logger),
		Fetcher: spclient.NewPagedListFetcher(exec, authCfg.SiteURL, logger),
		Checker: spclient.NewBatchPropertyChecker(exec, authCfg.SiteURL, params.CheckBatchSize, logger),
	}
	return session, params, nil
}

func openSiteClient(siteURL string, logger *logging.Logger) (spclient.SiteClient, error) {
	authCfg, err := spauth.FromEnv(siteURL)
	if err != nil {
		return nil, err
	}
	authClient, err := spauth.NewClient(authCfg)
	if err != nil {
		return nil, err
	}
	return spclient.NewGosipSiteClient(api.NewSP(authClient), authClient, logger), nil
}
