package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/adminclient"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/dashboard"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const (
	commandUseName          = "feedbackctl"
	commandShortDescription = "Manage FeedbackFlow widgets and feedback"
	flagNameConfig          = "config"
	flagNameServerURL       = "server-url"
	flagNameToken           = "token"
	flagNameTimeout         = "timeout"
	flagNameVerbose         = "verbose"
	flagNameEmail           = "email"
	flagNamePassword        = "password"
	flagNameNoSave          = "no-save"
	flagNameSiteURL         = "site-url"
	flagNameTheme           = "theme"
	flagNamePosition        = "position"
	flagNameSearch          = "search"
	flagNameWindow          = "window"
	flagNameDays            = "days"
	statusActive            = "active"
	statusPaused            = "paused"
	noFeedbackMessage       = "No feedback yet"
	noWidgetsMessage        = "No widgets yet"
	tabPadding              = 2
)

var (
	ErrNotSignedIn     = errors.New("not signed in: run feedbackctl login")
	ErrMissingSiteURL  = errors.New("--site-url is required")
	ErrMissingEmail    = errors.New("--email and --password are required")
	ErrUnknownWidgetID = errors.New("unknown widget")
)

// cliApplication carries the resolved configuration and I/O for one invocation.
type cliApplication struct {
	stdout     io.Writer
	stderr     io.Writer
	httpClient *http.Client
	now        func() time.Time

	configPath string
	config     CLIConfig
	logger     *zap.Logger
	client     *adminclient.Client
}

func newCLIApplication(stdout io.Writer, stderr io.Writer) *cliApplication {
	return &cliApplication{stdout: stdout, stderr: stderr, now: time.Now}
}

func (application *cliApplication) rootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           commandUseName,
		Short:         commandShortDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, _ []string) error {
			return application.prepare(command)
		},
	}
	rootCommand.SetOut(application.stdout)
	rootCommand.SetErr(application.stderr)

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.String(flagNameConfig, "", "path to the yaml configuration file (or FEEDBACKCTL_CONFIG)")
	persistentFlags.String(flagNameServerURL, "", "FeedbackFlow server URL")
	persistentFlags.String(flagNameToken, "", "bearer token")
	persistentFlags.Duration(flagNameTimeout, 0, "request timeout")
	persistentFlags.Bool(flagNameVerbose, false, "log requests to stderr")

	rootCommand.AddCommand(
		application.loginCommand(),
		application.widgetsCommand(),
		application.feedbackCommand(),
		application.overviewCommand(),
	)
	return rootCommand
}

func (application *cliApplication) prepare(command *cobra.Command) error {
	flags := command.Flags()
	configFlag, _ := flags.GetString(flagNameConfig)
	application.configPath = resolveConfigPath(configFlag)

	configuration, loadErr := loadCLIConfig(application.configPath)
	if loadErr != nil {
		return loadErr
	}
	if flags.Changed(flagNameServerURL) {
		serverURL, _ := flags.GetString(flagNameServerURL)
		configuration.ServerURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	}
	if flags.Changed(flagNameToken) {
		configuration.Token, _ = flags.GetString(flagNameToken)
	}
	if flags.Changed(flagNameTimeout) {
		configuration.Timeout, _ = flags.GetDuration(flagNameTimeout)
	}
	application.config = configuration

	application.logger = zap.NewNop()
	if verbose, _ := flags.GetBool(flagNameVerbose); verbose {
		logger, loggerErr := zap.NewDevelopment()
		if loggerErr != nil {
			return fmt.Errorf("logger: %w", loggerErr)
		}
		application.logger = logger
	}

	httpClient := application.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = configuration.Timeout
	client, clientErr := adminclient.New(configuration.ServerURL,
		adminclient.WithHTTPClient(httpClient),
		adminclient.WithToken(configuration.Token),
		adminclient.WithLogger(application.logger),
	)
	if clientErr != nil {
		return clientErr
	}
	application.client = client
	return nil
}

// controller signs in with the stored token and loads the dashboard state.
func (application *cliApplication) controller(ctx context.Context) (*dashboard.Controller, error) {
	if application.client.Token() == "" {
		return nil, ErrNotSignedIn
	}
	admin, meErr := application.client.Me(ctx)
	if meErr != nil {
		if adminclient.IsStatus(meErr, http.StatusUnauthorized) {
			return nil, ErrNotSignedIn
		}
		return nil, meErr
	}
	controller := dashboard.NewController(dashboard.ControllerConfig{
		Backend:  application.client,
		Notifier: application.notifier(),
		Logger:   application.logger,
		AdminID:  admin.ID,
		BaseURL:  application.config.ServerURL,
		Now:      application.now,
	})
	if refreshErr := controller.Refresh(ctx); refreshErr != nil {
		return nil, refreshErr
	}
	return controller, nil
}

// notifier prints action results to stderr. Refresh confirmations are dropped
// since every command refreshes first.
func (application *cliApplication) notifier() dashboard.Notifier {
	return dashboard.NotifierFunc(func(notification dashboard.Notification) {
		if notification.Kind == dashboard.NotificationSuccess && notification.Text == dashboard.RefreshedNotification {
			return
		}
		application.logger.Debug("notification", zap.String("kind", string(notification.Kind)), zap.String("text", notification.Text))
		fmt.Fprintln(application.stderr, notification.Text)
	})
}

func (application *cliApplication) loginCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the API token",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			email, _ := command.Flags().GetString(flagNameEmail)
			password, _ := command.Flags().GetString(flagNamePassword)
			noSave, _ := command.Flags().GetBool(flagNameNoSave)
			if strings.TrimSpace(email) == "" || password == "" {
				return ErrMissingEmail
			}
			session, loginErr := application.client.Login(command.Context(), email, password)
			if loginErr != nil {
				return loginErr
			}
			fmt.Fprintf(application.stdout, "Signed in as %s\n", session.Admin.Email)
			if noSave || application.configPath == "" {
				fmt.Fprintln(application.stdout, session.Token)
				return nil
			}
			if saveErr := saveToken(application.configPath, application.config.ServerURL, session.Token); saveErr != nil {
				return saveErr
			}
			fmt.Fprintf(application.stdout, "Token saved to %s\n", application.configPath)
			return nil
		},
	}
	command.Flags().String(flagNameEmail, "", "admin email")
	command.Flags().String(flagNamePassword, "", "admin password")
	command.Flags().Bool(flagNameNoSave, false, "print the token instead of saving it")
	return command
}

func (application *cliApplication) widgetsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "widgets",
		Short: "List and manage widgets",
	}

	listCommand := &cobra.Command{
		Use:   "list",
		Short: "List widgets with their stats",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			controller, err := application.controller(command.Context())
			if err != nil {
				return err
			}
			application.printWidgets(controller.Store().Snapshot())
			return nil
		},
	}

	createCommand := &cobra.Command{
		Use:   "create",
		Short: "Create a widget and print its embed code",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			siteURL, _ := command.Flags().GetString(flagNameSiteURL)
			theme, _ := command.Flags().GetString(flagNameTheme)
			position, _ := command.Flags().GetString(flagNamePosition)
			if strings.TrimSpace(siteURL) == "" {
				return ErrMissingSiteURL
			}
			controller, err := application.controller(command.Context())
			if err != nil {
				return err
			}
			widget, createErr := controller.Create(command.Context(), model.WidgetInput{SiteURL: siteURL, Theme: theme, Position: position})
			if createErr != nil {
				return createErr
			}
			fmt.Fprintf(application.stdout, "Widget %s created\n", widget.ID)
			return application.printEmbedCode(command.Context(), widget.ID)
		},
	}
	createCommand.Flags().String(flagNameSiteURL, "", "site the widget is embedded on")
	createCommand.Flags().String(flagNameTheme, model.DefaultWidgetTheme, "light, dark or auto")
	createCommand.Flags().String(flagNamePosition, model.DefaultWidgetPosition, "bottom-right, bottom-left, top-right or top-left")

	toggleCommand := application.widgetActionCommand("toggle", "Pause an active widget or activate a paused one",
		func(ctx context.Context, controller *dashboard.Controller, widgetID string) error {
			_, err := controller.Toggle(ctx, widgetID)
			return err
		})
	pauseCommand := application.widgetActionCommand("pause", "Pause a widget",
		func(ctx context.Context, controller *dashboard.Controller, widgetID string) error {
			_, err := controller.SetActive(ctx, widgetID, false)
			return err
		})
	activateCommand := application.widgetActionCommand("activate", "Activate a widget",
		func(ctx context.Context, controller *dashboard.Controller, widgetID string) error {
			_, err := controller.SetActive(ctx, widgetID, true)
			return err
		})
	deleteCommand := application.widgetActionCommand("delete", "Delete a widget and its feedback",
		func(ctx context.Context, controller *dashboard.Controller, widgetID string) error {
			if _, found := controller.Store().Snapshot().Widget(widgetID); !found {
				return fmt.Errorf("%w: %s", ErrUnknownWidgetID, widgetID)
			}
			return controller.Delete(ctx, widgetID)
		})

	embedCommand := &cobra.Command{
		Use:   "embed WIDGET_ID",
		Short: "Print the script tag for a widget",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			if application.client.Token() == "" {
				return ErrNotSignedIn
			}
			return application.printEmbedCode(command.Context(), arguments[0])
		},
	}

	activityCommand := &cobra.Command{
		Use:   "activity WIDGET_ID",
		Short: "Print daily event counts for a widget",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			if application.client.Token() == "" {
				return ErrNotSignedIn
			}
			days, _ := command.Flags().GetInt(flagNameDays)
			rollups, err := application.client.Activity(command.Context(), arguments[0], days)
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(application.stdout, 0, 0, tabPadding, ' ', 0)
			fmt.Fprintln(writer, "DATE\tEVENT\tCOUNT")
			for _, rollup := range rollups {
				fmt.Fprintf(writer, "%s\t%s\t%d\n", rollup.Date.Format(time.DateOnly), rollup.EventType, rollup.Count)
			}
			return writer.Flush()
		},
	}
	activityCommand.Flags().Int(flagNameDays, 7, "number of days including today")

	command.AddCommand(listCommand, createCommand, toggleCommand, pauseCommand, activateCommand, deleteCommand, embedCommand, activityCommand)
	return command
}

type widgetAction func(ctx context.Context, controller *dashboard.Controller, widgetID string) error

func (application *cliApplication) widgetActionCommand(use string, short string, action widgetAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " WIDGET_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			controller, err := application.controller(command.Context())
			if err != nil {
				return err
			}
			actionErr := action(command.Context(), controller, arguments[0])
			if errors.Is(actionErr, dashboard.ErrUnknownWidget) {
				return fmt.Errorf("%w: %s", ErrUnknownWidgetID, arguments[0])
			}
			return actionErr
		},
	}
}

func (application *cliApplication) feedbackCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "feedback",
		Short: "Browse submitted feedback",
	}
	listCommand := &cobra.Command{
		Use:   "list",
		Short: "List recent feedback across your widgets",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			search, _ := command.Flags().GetString(flagNameSearch)
			window, _ := command.Flags().GetString(flagNameWindow)
			controller, err := application.controller(command.Context())
			if err != nil {
				return err
			}
			state := controller.Store().Snapshot()
			application.printFeedback(state, controller.FilterFeedback(search, dashboard.ParseWindow(window)))
			return nil
		},
	}
	listCommand.Flags().String(flagNameSearch, "", "substring to match in message, email or page URL")
	listCommand.Flags().String(flagNameWindow, string(dashboard.WindowAll), "all, today, week or unread")
	command.AddCommand(listCommand)
	return command
}

func (application *cliApplication) overviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Print headline numbers and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			controller, err := application.controller(command.Context())
			if err != nil {
				return err
			}
			overview := controller.Overview()
			writer := tabwriter.NewWriter(application.stdout, 0, 0, tabPadding, ' ', 0)
			fmt.Fprintf(writer, "Total feedback\t%d\n", overview.TotalFeedback)
			fmt.Fprintf(writer, "Active widgets\t%d\n", overview.ActiveWidgets)
			fmt.Fprintf(writer, "Widget views\t%d\n", overview.WidgetViews)
			fmt.Fprintf(writer, "Response rate\t%d%%\n", overview.ResponseRate)
			if flushErr := writer.Flush(); flushErr != nil {
				return flushErr
			}
			fmt.Fprintln(application.stdout)
			fmt.Fprintln(application.stdout, "Recent activity")
			application.printFeedback(controller.Store().Snapshot(), overview.RecentActivity)
			return nil
		},
	}
}

func (application *cliApplication) printEmbedCode(ctx context.Context, widgetID string) error {
	code, err := application.client.EmbedCode(ctx, widgetID)
	if err != nil {
		if adminclient.IsStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownWidgetID, widgetID)
		}
		return err
	}
	fmt.Fprintln(application.stdout, code)
	return nil
}

func (application *cliApplication) printWidgets(state dashboard.State) {
	if len(state.Widgets) == 0 {
		fmt.Fprintln(application.stdout, noWidgetsMessage)
		return
	}
	writer := tabwriter.NewWriter(application.stdout, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(writer, "ID\tSITE\tTHEME\tPOSITION\tSTATUS\tFEEDBACK\tVIEWS\tCREATED")
	for _, widget := range state.Widgets {
		status := statusPaused
		if widget.IsActive {
			status = statusActive
		}
		stats := state.WidgetStats[widget.ID]
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			widget.ID, widget.SiteURL, widget.Theme, widget.Position, status,
			stats.Feedback, stats.Views, dashboard.TimeAgo(widget.CreatedAt, application.now()))
	}
	_ = writer.Flush()
}

func (application *cliApplication) printFeedback(state dashboard.State, feedback []model.Feedback) {
	if len(feedback) == 0 {
		fmt.Fprintln(application.stdout, noFeedbackMessage)
		return
	}
	sites := make(map[string]string, len(state.Widgets))
	for _, widget := range state.Widgets {
		sites[widget.ID] = widget.SiteURL
	}
	writer := tabwriter.NewWriter(application.stdout, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(writer, "WHEN\tSITE\tFROM\tBROWSER\tDEVICE\tMESSAGE")
	for _, item := range feedback {
		from := item.UserEmail
		if from == "" {
			from = "anonymous"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			dashboard.TimeAgo(item.CreatedAt, application.now()), sites[item.WidgetID], from,
			item.Browser, item.Device, strconv.Quote(item.Message))
	}
	_ = writer.Flush()
}
