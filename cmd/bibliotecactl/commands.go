package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	accountservice "biblioteca/internal/accounts/service"
	accountstore "biblioteca/internal/accounts/store"
	catalogmodels "biblioteca/internal/catalog/models"
	catalogservice "biblioteca/internal/catalog/service"
	catalogstore "biblioteca/internal/catalog/store"
	lendingstore "biblioteca/internal/lending/store"
	"biblioteca/internal/platform/config"
	"biblioteca/internal/platform/logger"
	"biblioteca/internal/platform/postgres"
	"biblioteca/internal/reporting"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/email"
	"biblioteca/pkg/platform/audit/publisher"
	auditpostgres "biblioteca/pkg/platform/audit/store/postgres"
)

var errNoDatabase = errors.New("DATABASE_URL is required")

type env struct {
	cfg config.Server
	log *slog.Logger
	db  *sql.DB
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "bibliotecactl",
		Short:         "Operator tasks for the biblioteca service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e.cfg = config.FromEnv()
			e.log = logger.New(e.cfg.LogLevel)
			if e.cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			db, err := postgres.Open(cmd.Context(), e.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			e.db = db
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if e.db != nil {
				_ = e.db.Close()
			}
		},
	}
	root.AddCommand(
		newInitSchemaCmd(e),
		newBootstrapAdminCmd(e),
		newAddItemCmd(e),
		newReportCmd(e),
	)
	return root
}

func newInitSchemaCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := postgres.ApplySchema(cmd.Context(), e.db); err != nil {
				return err
			}
			cmd.Println("schema applied")
			return nil
		},
	}
}

func newBootstrapAdminCmd(e *env) *cobra.Command {
	var emailAddr, password, first, last string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if first == "" && last == "" {
				first, last = email.DeriveNames(emailAddr)
			}
			pub := publisher.NewPublisher(auditpostgres.New(e.db), publisher.WithLogger(e.log))
			defer pub.Close()
			svc := accountservice.New(accountstore.NewPostgres(e.db),
				accountservice.WithLogger(e.log),
				accountservice.WithAuditPublisher(pub),
			)
			account, err := svc.BootstrapAdmin(cmd.Context(), emailAddr, password, first, last)
			if err != nil {
				return describe(err)
			}
			cmd.Printf("administrator %s created with handle %s\n", account.ID, account.Handle)
			return nil
		},
	}
	cmd.Flags().StringVar(&emailAddr, "email", "", "administrator email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&first, "first-name", "", "first name (derived from the email when omitted)")
	cmd.Flags().StringVar(&last, "last-name", "", "last name (derived from the email when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newAddItemCmd(e *env) *cobra.Command {
	var (
		actor string
		req   catalogmodels.CreateItemRequest
	)
	cmd := &cobra.Command{
		Use:   "add-item",
		Short: "Add a title to the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			actorID, err := id.ParseAccountID(actor)
			if err != nil {
				return describe(err)
			}
			pub := publisher.NewPublisher(auditpostgres.New(e.db), publisher.WithLogger(e.log))
			defer pub.Close()
			svc := catalogservice.New(catalogstore.NewPostgres(e.db),
				catalogservice.WithLogger(e.log),
				catalogservice.WithAuditPublisher(pub),
			)
			item, err := svc.CreateItem(cmd.Context(), actorID, &req)
			if err != nil {
				return describe(err)
			}
			cmd.Printf("item %s created with %d copies\n", item.ID, item.TotalCopies)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "as", "", "account ID recorded as the creator")
	cmd.Flags().StringVar(&req.Title, "title", "", "title")
	cmd.Flags().StringVar(&req.Author, "author", "", "author")
	cmd.Flags().StringVar(&req.Genre, "genre", "", "genre")
	cmd.Flags().IntVar(&req.Copies, "copies", 1, "number of copies")
	_ = cmd.MarkFlagRequired("as")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newReportCmd(e *env) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the dashboard aggregates as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := reportDate(asOf, e.cfg.Lending.Location)
			if err != nil {
				return err
			}
			svc := reporting.New(catalogstore.NewPostgres(e.db), lendingstore.NewPostgres(e.db),
				reporting.WithLogger(e.log),
				reporting.WithLocation(e.cfg.Lending.Location),
			)
			dashboard, err := svc.Dashboard(cmd.Context(), at)
			if err != nil {
				return describe(err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dashboard)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "report date as YYYY-MM-DD (today when omitted)")
	return cmd
}

func reportDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if raw == "" {
		return time.Now().In(loc), nil
	}
	at, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: %w", raw, err)
	}
	return at, nil
}

// describe turns a domain error into a one-line operator message.
func describe(err error) error {
	return fmt.Errorf("%s: %s", dErrors.CodeOf(err), dErrors.MessageOf(err))
}
