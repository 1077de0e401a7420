package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"benchline/internal/app"
	"benchline/internal/config"
	"benchline/internal/db"
	"benchline/internal/export"
	"benchline/internal/repo"
	"benchline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Benchline CLI",
	Long: `Benchline tracks jewelry orders through the workshop departments.
- Order: a customer piece moving CAD -> 3D printing -> casting -> filling -> enameling -> pre-polishing -> polishing -> stone setting -> finishing.
- Department tracking: one record per department the order has reached; NOT_STARTED -> IN_PROGRESS -> COMPLETED.
- Work submission: the form values, photos and files a worker collects; saved as drafts and submitted once complete.
- Feature flags: a disabled department only asks for its core fields.
- Activity log: every transition, view with 'bl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		// .env in the workspace fills in secrets such as BENCHLINE_JWT_SECRET.
		_ = godotenv.Load(filepath.Join(workspace, ".env"))
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BENCHLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(deptCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(flagsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var shopID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create benchline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(shopID)), 0o644); err != nil {
				return err
			}
			envPath := filepath.Join(workspace, ".env")
			if os.Getenv("BENCHLINE_JWT_SECRET") == "" {
				if err := setEnvValue(envPath, "BENCHLINE_JWT_SECRET", strings.ReplaceAll(uuid.NewString(), "-", "")); err != nil {
					return err
				}
			}
			a, err := app.Open(cmd.Context(), workspace, app.Options{Logger: zap.NewNop()})
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())
			fmt.Printf("Initialized shop %s in %s\n", shopID, workspace)
			return nil
		},
	}
	cmd.Flags().StringVar(&shopID, "shop", "workshop", "shop id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Open(ctx, viper.GetString("workspace"), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			authCfg := server.AuthConfig{
				JWTSecret:        viper.GetString("jwt-secret"),
				AllowActorHeader: allowActorHeader,
				DevLogin:         devLogin,
				Logger:           a.Log,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("BENCHLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Hub:      a.Hub,
				Disk:     a.Disk,
				Logger:   a.Log,
			})
			if err != nil {
				return err
			}
			server.StartWebhooks(ctx, a.Engine, a.Log)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			a.Log.Info("serving benchline api",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.String("shop", a.Config.Shop.ID))
			fmt.Printf("Serving Benchline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "accept X-Actor-Id without a token (trusted networks only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Activity log"}
	lg.AddCommand(logTailCmd())
	lg.AddCommand(logExportCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.ActivityFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if f.OrderID != "" {
					o, err := a.Engine.GetOrder(ctx, f.OrderID)
					if err != nil {
						return err
					}
					f.OrderID = o.ID
				}
				f.Department = strings.ToUpper(f.Department)
				entries, err := a.Engine.Repo.ListActivity(ctx, f)
				if err != nil {
					return err
				}
				if len(entries) > n {
					entries = entries[len(entries)-n:]
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				printActivity(entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&f.OrderID, "order", "", "order id or reference")
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.Action, "action", "", "action filter")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	return cmd
}

func logExportCmd() *cobra.Command {
	var out, orderID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export activity to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f := repo.ActivityFilters{}
				orders, err := a.Engine.ListOrders(ctx, repo.OrderFilters{})
				if err != nil {
					return err
				}
				if orderID != "" {
					o, err := a.Engine.GetOrder(ctx, orderID)
					if err != nil {
						return err
					}
					f.OrderID = o.ID
					orders = orders[:0]
					orders = append(orders, o)
				}
				entries, err := a.Engine.Repo.ListActivity(ctx, f)
				if err != nil {
					return err
				}
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := export.WriteActivity(file, entries, orders); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Printf("Wrote %d entries to %s\n", len(entries), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "activity.xlsx", "output file")
	cmd.Flags().StringVar(&orderID, "order", "", "limit to one order (id or reference)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
