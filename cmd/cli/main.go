package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/omerharel/dutywatch/internal/config"
	"github.com/omerharel/dutywatch/pkg/bot"
	"github.com/omerharel/dutywatch/pkg/clients/gmailclient"
	"github.com/omerharel/dutywatch/pkg/clients/sheetsclient"
	"github.com/omerharel/dutywatch/pkg/core/model"
	"github.com/omerharel/dutywatch/pkg/core/presence"
	"github.com/omerharel/dutywatch/pkg/core/reminder"
	"github.com/omerharel/dutywatch/pkg/core/roster"
	"github.com/omerharel/dutywatch/pkg/core/services"
	"github.com/omerharel/dutywatch/pkg/core/swap"
	"github.com/omerharel/dutywatch/pkg/core/tasks"
	"github.com/omerharel/dutywatch/pkg/core/timerange"
	"github.com/omerharel/dutywatch/pkg/db"
	"github.com/omerharel/dutywatch/pkg/i18n"
	"github.com/omerharel/dutywatch/pkg/postgres"
	"github.com/omerharel/dutywatch/pkg/utils/logging"
)

// App holds the application dependencies
type App struct {
	cfg       *config.Config
	oauthCfg  *config.OAuthClientConfig
	store     *sheetsclient.Client
	pg        *postgres.DB
	roster    *roster.Repository
	parser    *timerange.Parser
	resolver  *tasks.Resolver
	loop      *bot.Loop
	scheduler *reminder.Scheduler
	status    *services.StatusService
	report    *services.ReportService
	shifts    *services.ShiftService
	swaps     *services.SwapService
	logger    *zap.Logger
	ctx       context.Context
}

var (
	env string
	app *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dutywatch",
		Short: "DutyWatch CLI - Coordinate the on-call roster",
		Long:  `A CLI tool for tracking presence, duty shifts, reminders and shift swaps over the roster spreadsheet.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if app.pg != nil {
					app.pg.Close()
				}
				if app.logger != nil {
					app.logger.Sync()
				}
			}
		},
	}

	// Add persistent environment flag
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")

	// Add all commands
	rootCmd.AddCommand(whoIsHereCmd())
	rootCmd.AddCommand(shiftsCmd())
	rootCmd.AddCommand(myShiftsCmd())
	rootCmd.AddCommand(outCmd())
	rootCmd.AddCommand(backCmd())
	rootCmd.AddCommand(bindChatCmd())
	rootCmd.AddCommand(replacersCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(swapCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(interactiveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, clients and all core services
func initApp() error {
	var err error
	app = &App{
		ctx: context.Background(),
	}

	// Initialize logger
	app.logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	app.logger.Info("Loading configuration")
	app.cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.logger.Debug("Configuration loaded successfully")

	// Load OAuth client configuration
	app.logger.Info("Loading OAuth client configuration")
	app.oauthCfg, err = config.LoadOAuthClient(env)
	if err != nil {
		return fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	// Initialize sheets client
	app.logger.Info("Initializing sheets client")
	app.store, err = sheetsclient.NewClient(app.ctx, app.oauthCfg, env, app.cfg.SheetID)
	if err != nil {
		return fmt.Errorf("failed to create sheets client: %w", err)
	}
	app.logger.Debug("Sheets client initialized successfully")

	// Initialize gmail client (uses same OAuth token from sheets client)
	// only when commander digests are configured
	var mailer services.Mailer
	if len(app.cfg.Commanders) > 0 {
		app.logger.Info("Initializing gmail client")
		gmailClient, err := gmailclient.NewClient(app.ctx, app.oauthCfg, app.store.Token())
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		mailer = gmailClient
	}

	// Initialize the audit database when a DSN is configured
	var audit db.AuditStore
	if app.cfg.PostgresDSN != "" {
		app.logger.Info("Connecting to audit database")
		app.pg, err = postgres.NewDB(app.ctx, app.cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to audit database: %w", err)
		}
		if err := app.pg.RunMigrations(app.ctx); err != nil {
			return fmt.Errorf("failed to run audit migrations: %w", err)
		}
		audit = app.pg
	}

	// Load the language bundle
	translator := i18n.Nop()
	if app.cfg.LangFile != "" {
		translator, err = i18n.Load(app.cfg.LangFile)
		if err != nil {
			return fmt.Errorf("failed to load language bundle: %w", err)
		}
	}

	// Load the roster snapshot
	app.logger.Info("Loading roster")
	app.roster = roster.New(app.store, app.logger, app.cfg.PersonsTab, app.cfg.TeamsTab)
	if err := app.roster.Reload(app.ctx); err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}

	app.parser = timerange.New(app.cfg.Location(), time.Now)
	app.resolver = tasks.NewResolver(app.store, app.roster, app.parser, app.cfg.TaskTabs, app.logger)
	releases := presence.NewReleaseSource(app.store, app.parser, app.cfg.ReleasesTab, app.logger)

	app.loop = bot.NewLoop(64, app.logger)

	// The scheduler's callback closes over the status service, which in
	// turn holds the scheduler; wire through a late-bound closure.
	app.scheduler = reminder.New(
		app.loop.Submit,
		func(p *model.Person) { app.status.Remind(p) },
		app.cfg.RemindShortOutEvery(),
		app.cfg.RemindLongOutEvery(),
		app.logger,
	)

	sink := services.NewLogSink(app.logger)
	limits := presence.Limits{MinIn: app.cfg.MinIn, MaxShortOut: app.cfg.MaxShortOut}

	app.status = services.NewStatusService(services.StatusParams{
		Roster:      app.roster,
		Tasks:       app.resolver,
		Releases:    releases,
		Reminders:   app.scheduler,
		Sink:        sink,
		Mailer:      mailer,
		Audit:       audit,
		Translator:  translator,
		Limits:      limits,
		Commanders:  app.cfg.Commanders,
		MainChannel: app.cfg.MainChannel,
		OpsChannel:  app.cfg.OpsChannel,
		Log:         app.logger,
	})

	app.report = services.NewReportService(app.roster, app.resolver, releases, translator, app.logger)
	app.shifts = services.NewShiftService(app.resolver, translator, app.logger)
	app.swaps = services.NewSwapService(services.SwapParams{
		Roster:      app.roster,
		Cells:       app.resolver,
		Executor:    swap.NewExecutor(app.store, app.logger),
		Sink:        sink,
		Audit:       audit,
		Translator:  translator,
		MainChannel: app.cfg.MainChannel,
		OpsChannel:  app.cfg.OpsChannel,
		Log:         app.logger,
	})

	app.logger.Info("Application initialized successfully")
	return nil
}

// requirePerson resolves a roster member by name.
func requirePerson(name string) (*model.Person, error) {
	person, ok := app.roster.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s is not on the roster", name)
	}
	return person, nil
}

// parseWindow turns free-text range arguments into a window, defaulting
// to the next 7 days.
func parseWindow(args []string) (time.Time, time.Time, error) {
	if len(args) == 0 {
		now := time.Now().In(app.cfg.Location())
		return now, now.AddDate(0, 0, 7), nil
	}
	return app.parser.ParseRange(strings.Join(args, " "))
}

// Command definitions

func whoIsHereCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoishere",
		Short: "Show who is here, on duty, released and out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.report.WhoIsHere(app.ctx)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(report)
			return nil
		},
	}
}

func shiftsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shifts [range...]",
		Short: "List shifts in a time range (default: next 7 days), grouped by time",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow(args)
			if err != nil {
				return err
			}

			listing, err := app.shifts.ListShifts(app.ctx, nil, from, to)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(listing)
			return nil
		},
	}
}

func myShiftsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "myshifts <name> [range...]",
		Short: "List one person's shifts (default: next 7 days)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := requirePerson(args[0])
			if err != nil {
				return err
			}

			from, to, err := parseWindow(args[1:])
			if err != nil {
				return err
			}

			listing, err := app.shifts.ListShifts(app.ctx, person, from, to)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(listing)
			return nil
		},
	}
}

func outCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "out <name>",
		Short: "Mark a person out of the area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := requirePerson(args[0])
			if err != nil {
				return err
			}

			target := model.StatusOut
			if short {
				target = model.StatusShortOut
			}

			msg, err := app.status.ChangeStatus(app.ctx, person, target)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ %s\n", msg)
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Short absence (stricter cap, faster reminders)")
	return cmd
}

func backCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "back <name>",
		Short: "Mark a person back in the area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := requirePerson(args[0])
			if err != nil {
				return err
			}

			msg, err := app.status.ChangeStatus(app.ctx, person, model.StatusHere)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ %s\n", msg)
			return nil
		},
	}
}

func bindChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bindchat <name> <chat_id>",
		Short: "Bind a chat identifier to a roster member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := requirePerson(args[0])
			if err != nil {
				return err
			}

			chatID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("chat_id must be a number: %w", err)
			}

			if err := app.roster.SetChatID(app.ctx, person, chatID); err != nil {
				return err
			}
			fmt.Printf("\n✓ %s bound to chat %d\n", person.Name, chatID)
			return nil
		},
	}
}

func replacersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replacers <cellref>",
		Short: "Show who takes over after the referenced shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := model.ParseCellRef(args[0])
			if err != nil {
				return err
			}

			names, err := app.resolver.Replacers(app.ctx, ref)
			if err != nil {
				return err
			}

			if len(names) == 0 {
				fmt.Println("\nNo replacers on the following row.")
				return nil
			}
			fmt.Printf("\nReplacers: %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show recent status changes for a person (audit database)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.pg == nil {
				return fmt.Errorf("no audit database configured (set postgresDSN)")
			}

			changes, err := app.pg.RecentStatusChanges(app.ctx, args[0], limit)
			if err != nil {
				return err
			}

			if len(changes) == 0 {
				fmt.Println("\nNo recorded status changes.")
				return nil
			}
			fmt.Println()
			for _, c := range changes {
				fmt.Printf("%s  %s -> %s\n",
					c.ChangedAt.Format("2006-01-02 15:04"), c.From, c.To)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum entries to show")
	return cmd
}

func swapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Negotiate a shift swap step by step",
	}

	var token string

	startCmd := &cobra.Command{
		Use:   "start <requester>",
		Short: "Open a negotiation and print its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			person, err := requirePerson(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("\nToken: %s\n", app.swaps.Begin(person))
			return nil
		},
	}

	offerCmd := &cobra.Command{
		Use:   "offer [cellref]",
		Short: "Offer one of your shifts, or none to just take a shift",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ref *model.CellRef
			if len(args) == 1 {
				parsed, err := model.ParseCellRef(args[0])
				if err != nil {
					return err
				}
				ref = &parsed
			}

			next, err := app.swaps.OfferShift(app.ctx, token, ref)
			if err != nil {
				return err
			}
			fmt.Printf("\nToken: %s\n", next)
			return nil
		},
	}

	withCmd := &cobra.Command{
		Use:   "with <name>",
		Short: "Pick the person to swap with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := app.swaps.PickCounterparty(app.ctx, token, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("\nToken: %s\n", next)
			return nil
		},
	}

	takeCmd := &cobra.Command{
		Use:   "take <cellref>",
		Short: "Pick the counterparty shift to take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := model.ParseCellRef(args[0])
			if err != nil {
				return err
			}

			next, summary, err := app.swaps.PickCounterpartyShift(app.ctx, token, ref)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n\nToken: %s\n", summary, next)
			return nil
		},
	}

	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve and execute the swap (counterparty)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := app.swaps.Approve(app.ctx, token)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ %s\n", msg)
			return nil
		},
	}

	for _, sub := range []*cobra.Command{offerCmd, withCmd, takeCmd, approveCmd} {
		sub.Flags().StringVar(&token, "token", "", "Negotiation token from the previous step")
		sub.MarkFlagRequired("token")
	}

	cmd.AddCommand(startCmd, offerCmd, withCmd, takeCmd, approveCmd)
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the event loop and reminder timers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(app.ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			started := app.status.InitReminders()
			fmt.Printf("\n🚀 Watching: %d reminder timers running. Ctrl-C to stop.\n", started)

			err := app.loop.Run(ctx)
			app.scheduler.StopAll()
			if err == context.Canceled {
				fmt.Println("👋 Stopped.")
				return nil
			}
			return err
		},
	}
}

func interactiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (authenticate once, run multiple commands)",
		Long: `Start an interactive session where you can run multiple commands without re-authenticating.
The session will keep running until you type 'exit' or 'quit'.

Type 'help' to see available commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("\n🚀 Starting interactive session...")
			fmt.Println("Type 'help' for available commands, 'exit' or 'quit' to leave")

			// Get all sibling commands (excluding interactive itself)
			rootCmd := cmd.Parent()
			commands := make(map[string]*cobra.Command)
			for _, subCmd := range rootCmd.Commands() {
				if subCmd.Name() != "interactive" && subCmd.Name() != "completion" && subCmd.Name() != "help" {
					commands[subCmd.Name()] = subCmd
				}
			}

			scanner := bufio.NewScanner(os.Stdin)

			for {
				fmt.Print("> ")

				if !scanner.Scan() {
					break
				}

				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				parts := strings.Fields(line)
				cmdName := parts[0]
				cmdArgs := parts[1:]

				if cmdName == "exit" || cmdName == "quit" {
					fmt.Println("👋 Goodbye!")
					return nil
				}

				if cmdName == "help" {
					printInteractiveHelp(commands)
					continue
				}

				targetCmd, exists := commands[cmdName]
				if !exists {
					fmt.Printf("❌ Unknown command: %s (type 'help' for available commands)\n\n", cmdName)
					continue
				}

				// Reset command flags and args
				targetCmd.Flags().VisitAll(func(flag *pflag.Flag) {
					flag.Changed = false
					flag.Value.Set(flag.DefValue)
				})

				// Execute the command's RunE directly, bypassing the full Execute() flow
				// This avoids re-running PersistentPreRunE which would call initApp() again
				if err := targetCmd.ParseFlags(cmdArgs); err != nil {
					fmt.Printf("❌ Error parsing flags: %v\n\n", err)
					continue
				}

				cmdArgs = targetCmd.Flags().Args()

				if err := targetCmd.Args(targetCmd, cmdArgs); err != nil {
					fmt.Printf("❌ Error: %v\n\n", err)
					continue
				}

				if targetCmd.RunE != nil {
					if err := targetCmd.RunE(targetCmd, cmdArgs); err != nil {
						fmt.Printf("❌ Error: %v\n\n", err)
					}
				} else if targetCmd.Run != nil {
					targetCmd.Run(targetCmd, cmdArgs)
				}
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}

			return nil
		},
	}

	return cmd
}

func printInteractiveHelp(commands map[string]*cobra.Command) {
	fmt.Println("\nAvailable commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cmd := commands[name]
		fmt.Printf("  %-30s %s\n", cmd.Use, cmd.Short)
	}

	fmt.Println("\n  help                           Show this help message")
	fmt.Println("  exit, quit                     Exit the interactive session")
}
