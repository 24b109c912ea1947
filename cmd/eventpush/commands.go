package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tokmz/eventpush"
	"github.com/tokmz/eventpush/pkg/auth"
	"github.com/tokmz/eventpush/pkg/config"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "eventpush",
		Short:         "WebSocket event push server",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default ./eventpush.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading EVENTPUSH_* variables")

	cmd.AddCommand(
		newServeCmd(opts),
		newConfigCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// loadEnvFile 加载 .env，默认文件不存在时忽略
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// newLoader 显式指定的配置文件必须存在，否则在工作目录查找 eventpush.*
func (o *rootOptions) newLoader(extra ...config.Option) *config.Config {
	opts := []config.Option{}
	if o.configFile != "" {
		opts = append(opts, config.WithConfigFile(o.configFile))
	} else {
		opts = append(opts,
			config.WithConfigName("eventpush"),
			config.WithConfigPaths(".", "/etc/eventpush"),
			config.WithOptional(true),
		)
	}
	return config.New(append(opts, extra...)...)
}

func (o *rootOptions) settings() (*config.Settings, error) {
	loader := o.newLoader()
	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader.Settings()
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event push server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var current atomic.Pointer[eventpush.App]
			loader := opts.newLoader(
				config.WithAutoWatch(watch),
				config.WithOnChange(func(s *config.Settings) {
					if app := current.Load(); app != nil {
						app.Reload(s)
					}
				}),
			)
			if err := loader.Load(); err != nil {
				return err
			}
			defer loader.Close()

			if addr != "" {
				loader.Set("server.addr", addr)
			}
			s, err := loader.Settings()
			if err != nil {
				return err
			}

			app, err := eventpush.NewApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			current.Store(app)

			runErr := app.Run(cmd.Context())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return errors.Join(runErr, app.Close(ctx))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the log level when the config file changes")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings()
			if err != nil {
				return err
			}
			if !showSecrets {
				redact(s)
			}
			data, err := s.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secrets and passwords in clear text")
	return cmd
}

// redact 隐藏输出中的密钥和密码
func redact(s *config.Settings) {
	const mask = "******"
	if s.Auth.Token.Secret != "" {
		s.Auth.Token.Secret = mask
	}
	if s.Auth.Store.Redis.Password != "" {
		s.Auth.Store.Redis.Password = mask
	}
	if s.Bridges.Redis.Client.Password != "" {
		s.Bridges.Redis.Client.Password = mask
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject   string
		resources []string
		admin     bool
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a single-use auth token",
		Example: `  eventpush token --subject ops --resource db1 --resource db2
  eventpush token --subject root --admin --ttl 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings()
			if err != nil {
				return err
			}
			cfg := s.Auth.Token
			if ttl > 0 {
				cfg.TTL = ttl
			}
			issuer, err := auth.NewIssuer(cfg)
			if err != nil {
				return err
			}
			token, claims, err := issuer.Issue(subject, resources, admin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "jti=%s expires=%s\n", claims.ID, claims.Expiry().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().StringSliceVar(&resources, "resource", nil, "resource the token grants (repeatable, * for all)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin endpoints (traffic-watch, admin logs)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token.ttl)")
	return cmd
}
