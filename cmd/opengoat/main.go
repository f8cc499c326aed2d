// Command opengoat runs the OpenGoat control plane: it wires every
// component into a service.Service and starts the task-cron loop. An
// external HTTP router or CLI is expected to sit in front of the
// service contract this binary exposes; this binary's own flags are
// limited to the operations that don't need one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opengoat/internal/agentstore"
	"opengoat/internal/authsession"
	"opengoat/internal/config"
	"opengoat/internal/database"
	"opengoat/internal/diagnostics"
	"opengoat/internal/dispatcher"
	"opengoat/internal/i18n"
	"opengoat/internal/logger"
	"opengoat/internal/monitor"
	"opengoat/internal/notify"
	"opengoat/internal/openclaw"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
	"opengoat/internal/roleskill"
	"opengoat/internal/service"
	"opengoat/internal/sessionstore"
	"opengoat/internal/skillstore"
	"opengoat/internal/taskcron"
	"opengoat/internal/taskstore"
	"opengoat/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	_ = i18n.Init()
	i18n.SelectLanguageWithTimeout(5)

	if len(args) == 0 {
		return serve()
	}

	switch args[0] {
	case "-h", "--help", "help":
		fmt.Println(usage())
		return 0
	case "-v", "--version", "version":
		fmt.Printf("opengoat %s (build %s)\n", version.Resolved(), version.Build)
		return 0
	case "doctor":
		return doctor(args[1:])
	case "sync":
		return sync(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", args[0], usage())
		return 2
	}
}

func usage() string {
	return "opengoat [command]\n\n" +
		"commands:\n" +
		"  (none)     run the control plane: cron loop, collector, gateway client\n" +
		"  doctor     run environment/gateway diagnostics and print the report\n" +
		"  sync       run syncRuntimeDefaults once and print the result\n" +
		"  version    print the resolved version\n"
}

func buildService() (*service.Service, error) {
	paths := ports.NewHomePaths()
	fs := ports.OSFilesystem{}
	clock := ports.SystemClock{}
	runner := ports.OSCommandRunner{}

	if err := fs.MkdirAll(paths.Home(), 0o755); err != nil {
		return nil, fmt.Errorf("create home directory: %w", err)
	}
	logger.Configure(logger.LogDir())

	if err := database.Open(paths.Home()); err != nil {
		return nil, fmt.Errorf("open activity database: %w", err)
	}

	auth, err := authsession.New(fs, paths)
	if err != nil {
		return nil, fmt.Errorf("init auth session manager: %w", err)
	}

	activity := database.NewActivityRepo()
	gatewayProfiles := database.NewGatewayProfileRepo()

	notifier := notify.NewManager()
	notifier.Reload()

	providers := provider.NewRegistry()
	providers.Register(openclaw.NewCLIProvider())

	var gwClient *openclaw.GWClient
	if active, err := gatewayProfiles.GetActive(); err == nil && active != nil && active.Host != "" {
		gwClient = openclaw.NewGWClient(openclaw.GatewayConfig{
			Name:     active.Name,
			URL:      fmt.Sprintf("ws://%s:%d", active.Host, active.Port),
			Token:    active.Token,
			DeviceID: active.DeviceID,
		}, auth)
		// A configured gateway profile takes over the "openclaw" provider
		// id from the CLI provider; OpenGoat talks to one OpenClaw runtime
		// at a time, either local binary or remote gateway.
		providers.Register(openclaw.NewGatewayProvider(gwClient))
	}

	for _, spec := range modelProviderSpecs() {
		providers.Register(provider.NewModelProvider(spec.id, spec.binary, runner))
	}

	roleSync := roleskill.New(fs, paths)
	agents := agentstore.New(fs, paths, providers, roleSync, activity)
	sessions := sessionstore.New(fs, paths, clock)
	reporteeChecker := taskstore.NewAgentStoreReporteeChecker(agents)
	tasks := taskstore.New(fs, paths, clock, reporteeChecker, activity)
	skills := skillstore.New(fs, paths, agents, providers)
	disp := dispatcher.New(fs, paths, providers, sessions, clock)
	reconciler := openclaw.NewReconciler(fs, paths, activity)

	settingsGet := func() config.Settings {
		s, err := config.Load(fs, paths)
		if err != nil {
			return config.Defaults()
		}
		return s
	}

	cron := taskcron.New(agents, tasks, disp, providers, sessions, fs, paths, clock, settingsGet, 60*time.Second, notifier, activity)

	collector := monitor.NewCollector(openclaw.ResolveStateDir(), gwClient, activity, 30)

	return service.New(service.Deps{
		FS: fs, Paths: paths, Clock: clock,
		Providers: providers, RoleSync: roleSync,
		Agents: agents, Sessions: sessions, Tasks: tasks, Skills: skills,
		Dispatcher: disp, Cron: cron, Reconciler: reconciler,
		Collector: collector,
		GatewayProfiles: gatewayProfiles, Activity: activity,
		Auth: auth, Notify: notifier,
	}), nil
}

type modelProviderSpec struct{ id, binary string }

// modelProviderSpecs enumerates the model-only providers OpenGoat
// recognizes out of the box: Codex and Claude-Code style CLIs, each
// invoked as a plain binary with no agent-inventory capability.
func modelProviderSpecs() []modelProviderSpec {
	return []modelProviderSpec{
		{id: "codex", binary: "codex"},
		{id: "claude-code", binary: "claude"},
	}
}

func serve() int {
	svc, err := buildService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Initialize(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		svc.HardReset()
		cancel()
	}()

	logger.Core.Info().Str("home", svc.Paths.Home()).Msg("opengoat starting")
	svc.Run(ctx)
	return 0
}

func doctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	gatewayHostPort := fs.String("gateway", "", "host:port of the openclaw gateway to probe")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	svc, err := buildService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	report := svc.Diagnose(context.Background(), *gatewayHostPort)
	diagReport := svc.RunDiagnostics(func() (diagnostics.Issue, bool) {
		if !openclaw.IsInstalled() {
			return diagnostics.Issue{Level: "error", Message: "openclaw binary not found", Suggestion: "install openclaw or set OPENCLAW_CMD"}, true
		}
		return diagnostics.Issue{}, false
	})

	fmt.Printf("gateway checks: %d (%s)\n", len(report.Items), report.Summary)
	for _, c := range report.Items {
		fmt.Printf("  [%s] %s: %s\n", c.Status, c.Name, c.Detail)
	}
	for _, issue := range diagReport.Issues {
		fmt.Printf("  [%s] %s (%s)\n", issue.Level, issue.Message, issue.Suggestion)
	}
	if diagReport.HasErrors {
		return 1
	}
	return 0
}

func sync(args []string) int {
	svc, err := buildService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	result, err := svc.SyncRuntimeDefaults(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("ceoSynced=%v warnings=%d\n", result.CeoSynced, len(result.Warnings))
	for _, w := range result.Warnings {
		fmt.Println("  -", w)
	}
	return 0
}
