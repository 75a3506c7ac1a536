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
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"taskgate/internal/app"
	"taskgate/internal/autosave"
	"taskgate/internal/config"
	"taskgate/internal/db"
	"taskgate/internal/domain"
	"taskgate/internal/engine"
	"taskgate/internal/engine/auth"
	"taskgate/internal/logging"
	"taskgate/internal/server"
	"taskgate/internal/validate"
)

const jwtSecretEnv = "TASKGATE_JWT_SECRET"

var rootCmd = &cobra.Command{
	Use:   "tg",
	Short: "TaskGate CLI",
	Long: `TaskGate reviews partner task configurations before they ship to the mobile app.
- Drafts: partners edit one provider with its tasks until it is ready.
- Submissions: a submitted draft becomes a pending review entry.
- Reviews: admins approve, decline or reopen entries; approved entries are published.
- Default config: the first-party provider and tasks, edited by admins.
- Export: the default config merged with every approved entry, as fetched by clients.
- Event log: who did what, view with 'tg log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
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
	viper.SetEnvPrefix("TASKGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "email of the acting user")
	rootCmd.PersistentFlags().Bool("verbose", false, "log at the configured level instead of warn")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(defaultCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(partnerCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(whoamiCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create taskgate.yml, a JWT secret and the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s already exists\n", path)
			} else if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			} else {
				fmt.Printf("wrote %s\n", path)
			}
			if os.Getenv(jwtSecretEnv) == "" || force {
				secret := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				if err := setEnvValue(filepath.Join(workspace, ".env"), jwtSecretEnv, secret); err != nil {
					return err
				}
				fmt.Printf("wrote %s to %s\n", jwtSecretEnv, filepath.Join(workspace, ".env"))
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				fmt.Printf("store ready (%s)\n", storeDriver(rt.Config))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite taskgate.yml and rotate the JWT secret")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			log, err := logging.New(logging.Config{Level: cfg.Log.Level, Environment: cfg.Log.Env, ServiceName: "taskgate"})
			if err != nil {
				return err
			}
			defer log.Sync()

			rt, err := app.Open(cmd.Context(), workspace, cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			authCfg := server.AuthConfig{
				JWTSecret: jwtSecret(cfg),
				DevLogin:  cfg.Auth.DevLogin,
				TokenTTL:  cfg.TokenTTL(),
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("%s is required for bearer auth (run tg init)", jwtSecretEnv)
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			queue := autosave.New(cfg.AutosaveDelay(), log, rt.Metrics)
			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Autosave: queue,
				Metrics:  rt.Metrics,
				Log:      log,
				BlobDir:  rt.BlobDir,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath), zap.String("store", storeDriver(cfg)))
			fmt.Printf("Serving TaskGate API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := queue.Close(ctx); err != nil {
				log.Error("flush autosave queue", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a bundle file without touching the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBundle(args[0])
			if err != nil {
				return err
			}
			b.Normalize()
			res := validate.Bundle(b)
			if err := printValidation(res); err != nil {
				return err
			}
			if !res.Valid() {
				return fmt.Errorf("%d validation error(s)", len(res.Errors))
			}
			return nil
		},
	}
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show what the acting user may do",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p auth.Principal) error {
				w, err := e.Whoami(ctx, p)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

// --- helpers ---

func loadConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if dsn := viper.GetString("store-dsn"); dsn != "" {
		cfg.Store.DSN = dsn
	}
	if driver := viper.GetString("store-driver"); driver != "" {
		cfg.Store.Driver = driver
	}
	return cfg, cfg.Validate()
}

func jwtSecret(cfg *config.Config) string {
	if s := viper.GetString("jwt-secret"); s != "" {
		return s
	}
	return cfg.Auth.JWTSecret
}

func storeDriver(cfg *config.Config) string {
	if cfg.Store.Driver == "" {
		return "sqlite"
	}
	return cfg.Store.Driver
}

func cliLogger(cfg *config.Config) (*zap.Logger, error) {
	level := "warn"
	if viper.GetBool("verbose") {
		level = cfg.Log.Level
	}
	return logging.New(logging.Config{Level: level, Environment: "development", ServiceName: "tg"})
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := loadConfig(workspace)
	if err != nil {
		return err
	}
	log, err := cliLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	rt, err := app.Open(ctx, workspace, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, auth.Principal) error) error {
	p, err := principal()
	if err != nil {
		return err
	}
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine, p)
	})
}

func principal() (auth.Principal, error) {
	email := strings.TrimSpace(viper.GetString("as"))
	if email == "" {
		return auth.Principal{}, fmt.Errorf("--as (or TASKGATE_AS) is required")
	}
	return auth.Principal{Email: email, Source: "cli"}, nil
}

func readBundle(path string) (domain.ConfigBundle, error) {
	var b domain.ConfigBundle
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parse %s: %w", path, err)
	}
	return b, nil
}

func printValidation(res validate.Result) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"valid": res.Valid(), "errors": res.Errors})
	}
	if res.Valid() {
		fmt.Println("valid")
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Field", "Error"})
	for _, f := range validate.Paths(res.Errors) {
		tw.AppendRow(table.Row{f, res.Errors[f]})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
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

func optionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
