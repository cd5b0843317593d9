package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
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

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"folio/internal/app"
	"folio/internal/config"
	"folio/internal/db"
	"folio/internal/engine"
	"folio/internal/engine/auth"
	"folio/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Folio editorial workflow CLI",
	Long: `Folio runs the editorial workflow of a student journal.
- Submissions move through desk review, peer review and decision rounds; revisions open a new round.
- Reviewers are invited by e-mail and answer through a tokenized link.
- Reviewers and editors score each round with a fixed rubric; the totals recommend a decision.
- The work queue reconciles the incoming-submissions sheet with the assignment sheet.
- Every change is written to the event log; view it with 'folio log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// initConfig loads <workspace>/.env without overriding the real environment,
// then binds FOLIO_* variables.
func initConfig() {
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: load", envFile+":", err)
	}
	viper.SetEnvPrefix("FOLIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("email", "", "actor e-mail (defaults to the stored one)")
	flags.String("log-level", "", "log level (overrides folio.yml)")
	flags.String("log-format", "", "log format, text or json (overrides folio.yml)")
	for _, name := range []string{"workspace", "json", "actor-id", "email", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(rubricCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(bootstrapCmd())
}

func initCmd() *cobra.Command {
	var journalID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create folio.yml, the database and a JWT secret in .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				fmt.Println("config exists:", path)
			} else if err := os.WriteFile(path, []byte(config.GenerateDefault(journalID)), 0o644); err != nil {
				return err
			} else {
				fmt.Println("wrote", path)
			}
			if os.Getenv("FOLIO_JWT_SECRET") == "" {
				secret, err := randomSecret()
				if err != nil {
					return err
				}
				if err := setEnvValue(filepath.Join(workspace, ".env"), "FOLIO_JWT_SECRET", secret); err != nil {
					return err
				}
				fmt.Println("stored FOLIO_JWT_SECRET in .env")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Println("database ready:", db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&journalID, "journal", "journal", "journal id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt_secret")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("FOLIO_JWT_SECRET is required for bearer auth")
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg, Logger: rt.Logger})
			if err != nil {
				return err
			}
			if d := server.NewWebhookDispatcher(rt.Engine, rt.Logger); d != nil {
				go d.Run(cmd.Context())
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			rt.Logger.WithField("addr", addr).Info(fmt.Sprintf("serving Folio API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)", addr, basePath, basePath, basePath))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(viper.GetString("jwt_secret"), viper.GetString("actor-id"), viper.GetString("email"), roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Grant " + engine.BootstrapRole + " to the current actor when no role exists yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ok, err := e.Bootstrap(ctx, viper.GetString("actor-id"), viper.GetString("email"))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("roles already granted; use 'folio role grant'")
				}
				fmt.Printf("granted %s to %s\n", engine.BootstrapRole, viper.GetString("actor-id"))
				return nil
			})
		},
	}
}

// --- helpers ---

func openRuntime(ctx context.Context) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		LogLevel:  viper.GetString("log-level"),
		LogFormat: viper.GetString("log-format"),
		SMTPPass:  viper.GetString("smtp_pass"),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

// withPrincipal runs fn as the actor named by --actor-id with its stored roles.
func withPrincipal(ctx context.Context, fn func(context.Context, engine.Engine, auth.Principal) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		p, err := e.Principal(ctx, viper.GetString("actor-id"), viper.GetString("email"))
		if err != nil {
			return err
		}
		return fn(ctx, e, p)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
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
