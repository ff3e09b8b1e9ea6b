package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosuri/uitable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/config"
	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/maintenance"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/schedule"
)

// viewerFlags select whose schedule is shown.
type viewerFlags struct {
	as     string
	role   string
	ship   string
	userID string
	email  string
	name   string
}

func (f *viewerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.as, "as", "", "look up the viewer by email in the users collection")
	cmd.Flags().StringVar(&f.role, "role", string(models.RoleMainAdmin), "viewer role (main-admin, ship-admin, gemi-personeli)")
	cmd.Flags().StringVar(&f.ship, "ship", "", "viewer ship id")
	cmd.Flags().StringVar(&f.userID, "user-id", "cli", "viewer user id")
	cmd.Flags().StringVar(&f.email, "email", "", "viewer email")
	cmd.Flags().StringVar(&f.name, "name", "", "viewer name")
}

func (f *viewerFlags) user() (*models.User, error) {
	role := models.Role(f.role)
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", f.role)
	}
	return &models.User{ID: models.DocID(f.userID), Email: f.email, Name: f.name, Username: f.email, Role: role, ShipID: f.ship}, nil
}

// sourceFlags select where equipment and records are read from.
type sourceFlags struct {
	file    string
	today   string
	horizon string
	locale  string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "read equipment and records from a JSON export instead of MongoDB")
	cmd.Flags().StringVar(&f.today, "today", "", "evaluate the schedule as of this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.horizon, "horizon", "", "generation horizon, e.g. 1y, 6m, 90d")
	cmd.Flags().StringVar(&f.locale, "locale", "", "month title locale (tr, en)")
}

// session is an opened maintenance service plus the viewer to query as.
type session struct {
	svc    *maintenance.Service
	viewer *models.User
	close  func()
}

func openSession(ctx context.Context, src sourceFlags, vf viewerFlags) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()
	logger.SetOutput(os.Stderr)

	mcfg := maintenance.Config{
		Schedule:       cfg.ScheduleOptions(),
		Locale:         cfg.Schedule.Locale,
		ReminderWindow: cfg.Schedule.ReminderWindow,
		Clock:          schedule.SystemClock{Location: cfg.Schedule.Location},
		Logger:         logger,
	}
	if src.horizon != "" {
		if mcfg.Schedule.Horizon, err = schedule.ParseHorizon(src.horizon); err != nil {
			return nil, fmt.Errorf("--horizon: %w", err)
		}
	}
	if src.locale != "" {
		mcfg.Locale = src.locale
	}
	if src.today != "" {
		day, err := time.ParseInLocation(models.DateLayout, src.today, cfg.Schedule.Location)
		if err != nil {
			return nil, fmt.Errorf("--today: %w", err)
		}
		mcfg.Clock = schedule.FixedClock(day)
	}

	if src.file != "" {
		if vf.as != "" {
			return nil, fmt.Errorf("--as needs MongoDB; use --role, --ship and --email with --file")
		}
		snap, err := loadSnapshot(src.file)
		if err != nil {
			return nil, err
		}
		viewer, err := vf.user()
		if err != nil {
			return nil, err
		}
		return &session{svc: maintenance.NewService(snap, snap, mcfg), viewer: viewer, close: func() {}}, nil
	}

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, err
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }
	cols := db.NewCollections(client, cfg.Mongo.Database)

	var viewer *models.User
	if vf.as != "" {
		viewer, err = cols.Users.FindUserByEmail(ctx, vf.as)
	} else {
		viewer, err = vf.user()
	}
	if err != nil {
		closeFn()
		return nil, err
	}
	logger.WithFields(logrus.Fields{"database": cfg.Mongo.Database, "role": viewer.Role}).Debug("Connected to MongoDB")
	return &session{svc: maintenance.NewService(cols.Equipment, cols.Records, mcfg), viewer: viewer, close: closeFn}, nil
}

func newScheduleCmd() *cobra.Command {
	var (
		src    sourceFlags
		vf     viewerFlags
		all    bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the maintenance schedule grouped by month",
		Example: `  schedulectl schedule --file equipment.json --today 2024-06-15
  schedulectl schedule --as kaptan@fleet.io --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), src, vf)
			if err != nil {
				return err
			}
			defer s.close()

			view, err := s.svc.View(cmd.Context(), s.viewer, all)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printSchedule(cmd.OutOrStdout(), view)
			return nil
		},
	}
	src.register(cmd)
	vf.register(cmd)
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed maintenance")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newRemindersCmd() *cobra.Command {
	var (
		src    sourceFlags
		vf     viewerFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Print the reminders pending in the reminder window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), src, vf)
			if err != nil {
				return err
			}
			defer s.close()

			reminders, err := s.svc.Reminders(cmd.Context(), s.viewer)
			if err != nil {
				return err
			}
			if asJSON {
				if reminders == nil {
					reminders = []schedule.Reminder{}
				}
				return printJSON(cmd.OutOrStdout(), reminders)
			}
			printReminders(cmd.OutOrStdout(), reminders)
			return nil
		},
	}
	src.register(cmd)
	vf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var vf viewerFlags
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with JWT_SECRET",
		Long: `Issue a bearer token for the HTTP API. Identity is managed elsewhere;
this is meant for operators, scripts and the hours simulator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			user, err := vf.user()
			if err != nil {
				return err
			}
			authService, err := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expiration)
			if err != nil {
				return err
			}
			token, err := authService.GenerateToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	vf.register(cmd)
	return cmd
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schedulectl",
		Short:         "Inspect fleet maintenance schedules",
		Long:          `schedulectl generates the maintenance schedule and reminders from MongoDB or a JSON export.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScheduleCmd(), newRemindersCmd(), newTokenCmd())
	return root
}

func printSchedule(w io.Writer, view *maintenance.View) {
	fmt.Fprintf(w, "Today: %s  overdue %d  today %d  upcoming %d  completed %d\n",
		view.Today.Format(models.DateLayout),
		view.Summary.Overdue, view.Summary.Today, view.Summary.Upcoming, view.Summary.Completed)
	if len(view.Sections) == 0 {
		fmt.Fprintln(w, "No maintenance scheduled.")
		return
	}
	for _, section := range view.Sections {
		fmt.Fprintf(w, "\n%s\n", section.Title)
		table := uitable.New()
		table.MaxColWidth = 50
		table.Wrap = true
		table.AddRow("DATE", "EQUIPMENT", "SHIP", "REASON", "STATUS", "COMMENT")
		for _, it := range section.Items {
			table.AddRow(it.Date.Format(models.DateLayout), label(it.Occurrence), it.Ship, it.Reason, status(it), it.Comment)
		}
		fmt.Fprintln(w, table)
	}
}

func printReminders(w io.Writer, reminders []schedule.Reminder) {
	if len(reminders) == 0 {
		fmt.Fprintln(w, "No reminders pending.")
		return
	}
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("FIRE ON", "KIND", "KEY", "TITLE", "BODY")
	for _, r := range reminders {
		table.AddRow(r.FireOn.Format(models.DateLayout), r.Kind, r.Key, r.Title, r.Body)
	}
	fmt.Fprintln(w, table)
}

func label(o models.Occurrence) string {
	if o.EquipmentType == "" {
		return o.EquipmentID
	}
	return o.EquipmentType + " (" + o.EquipmentID + ")"
}

func status(it schedule.Item) string {
	s := string(it.Status)
	if it.Completed && it.Status != schedule.StatusCompleted {
		s += ", done"
	}
	if it.Estimated {
		s += ", est."
	}
	return s
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
