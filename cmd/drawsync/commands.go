package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/auth"
	"github.com/MarcoPoloResearchLab/drawsync/internal/config"
	"github.com/MarcoPoloResearchLab/drawsync/internal/database"
	"github.com/MarcoPoloResearchLab/drawsync/internal/drawsync"
	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
	"github.com/MarcoPoloResearchLab/drawsync/internal/server"
	"github.com/jszwec/csvutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultTrigger  = "cli"
	exportPageLimit = 5000
)

var errSyncFailed = errors.New("one or more games failed to sync")

func newSyncCommand() *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "sync <game>",
		Short: "Sync the draw history of one game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			game, err := lottery.ParseGame(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				result, err := rt.service.SyncGame(ctx, game, trigger)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if result.Status != drawsync.RunStatusSuccess {
					return errSyncFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", defaultTrigger, "Trigger label recorded on the run")
	return cmd
}

func newSyncAllCommand() *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "sync-all",
		Short: "Sync every configured game in sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				result, err := rt.service.SyncAll(ctx, trigger)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				for _, game := range result.Games {
					if game.Status != drawsync.RunStatusSuccess {
						return errSyncFailed
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", defaultTrigger, "Trigger label recorded on the runs")
	return cmd
}

func newStatusCommand() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored draws and sync state per game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reference := lottery.DateOf(time.Now())
			if strings.TrimSpace(date) != "" {
				parsed, err := lottery.ParseDate(date)
				if err != nil {
					return err
				}
				reference = parsed
			}
			return withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				report, err := rt.service.Status(ctx, reference)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Reference date for the next draw (YYYY-MM-DD, default today)")
	return cmd
}

func newDrawsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draws",
		Short: "Inspect stored draws",
	}
	cmd.AddCommand(newDrawsExportCommand())
	return cmd
}

func newDrawsExportCommand() *cobra.Command {
	var (
		from   string
		to     string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <game>",
		Short: "Export stored draws of a game as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			game, err := lottery.ParseGame(args[0])
			if err != nil {
				return err
			}
			query := drawsync.DrawQuery{Limit: exportPageLimit}
			if query.From, err = optionalDate(from); err != nil {
				return err
			}
			if query.To, err = optionalDate(to); err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				draws, err := rt.service.ListDraws(ctx, game, query)
				if err != nil {
					return err
				}

				writer := cmd.OutOrStdout()
				if output != "" && output != "-" {
					file, err := os.Create(output)
					if err != nil {
						return err
					}
					defer file.Close()
					writer = file
				}
				if err := exportDraws(writer, draws); err != nil {
					return err
				}
				rt.logger.Info("draws exported", zap.String("game", game.String()), zap.Int("count", len(draws)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First draw date to export (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last draw date to export (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

// drawRecord is one CSV line of an export.
type drawRecord struct {
	Game   lottery.Game `csv:"game"`
	Date   lottery.Date `csv:"draw_date"`
	Main   string       `csv:"main_numbers"`
	Bonus  string       `csv:"bonus_numbers"`
	Source string       `csv:"source"`
}

func exportDraws(writer io.Writer, draws []drawsync.Draw) error {
	csvWriter := csv.NewWriter(writer)
	encoder := csvutil.NewEncoder(csvWriter)
	if err := encoder.EncodeHeader(drawRecord{}); err != nil {
		return err
	}
	for index := len(draws) - 1; index >= 0; index-- {
		draw := draws[index]
		record := drawRecord{
			Game:   draw.Game,
			Date:   draw.DrawDate,
			Main:   joinNumbers(draw.MainNumbers),
			Bonus:  joinNumbers(draw.BonusNumbers),
			Source: draw.Source,
		}
		if err := encoder.Encode(record); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func joinNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for index, number := range numbers {
		parts[index] = strconv.Itoa(number)
	}
	return strings.Join(parts, " ")
}

func optionalDate(raw string) (lottery.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return lottery.Date{}, nil
	}
	return lottery.ParseDate(raw)
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *appRuntime) error {
				if err := rt.config.RequireAdmin(); err != nil {
					return err
				}
				return runServer(ctx, rt)
			})
		},
	}
}

func runServer(ctx context.Context, rt *appRuntime) error {
	validator, err := auth.NewAdminValidator(auth.AdminValidatorConfig{
		SigningSecret: []byte(rt.config.Admin.SigningSecret),
		Issuer:        rt.config.Admin.Issuer,
		Audience:      rt.config.Admin.Audience,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SyncService: rt.service,
		Validator:   validator,
		Events:      rt.events,
		HealthCheck: func(ctx context.Context) error {
			return database.Ping(ctx, rt.db)
		},
		MetricsHandler: promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}),
		AllowedOrigins: rt.config.HTTP.AllowedOrigins,
		Logger:         rt.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              rt.config.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("server starting", zap.String("address", rt.config.HTTP.Address))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		rt.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token for the HTTP surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if err := appConfig.RequireAdmin(); err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.Admin.SigningSecret),
				Issuer:        appConfig.Admin.Issuer,
				Audience:      appConfig.Admin.Audience,
				TokenTTL:      time.Duration(appConfig.Admin.TokenTTLMinutes) * time.Minute,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueAdminToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"token":      token,
				"expires_at": expiresAt,
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "Subject recorded in the token")
	return cmd
}

// withRuntime wires the dependencies, cancels on SIGINT/SIGTERM and releases everything afterwards.
func withRuntime(cmd *cobra.Command, run func(ctx context.Context, rt *appRuntime) error) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, rt)
}

func writeJSON(writer io.Writer, value any) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
