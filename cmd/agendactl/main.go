// agendactl is the operator CLI: session sweep, rate limit counters and password hashing.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"minha-agenda/backend/internal/app"
	"minha-agenda/backend/internal/config"
	"minha-agenda/backend/internal/security"
)

type sweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

// runtime holds the collaborators commands open lazily, so tests can swap them.
type runtime struct {
	loadConfig  func() (*config.Config, error)
	openSweeper func(ctx context.Context, cfg *config.Config) (sweeper, func(), error)
}

func defaultRuntime() runtime {
	return runtime{
		loadConfig: config.Load,
		openSweeper: func(ctx context.Context, cfg *config.Config) (sweeper, func(), error) {
			id, err := app.OpenIdentity(ctx, cfg, app.IdentityOptions{})
			if err != nil {
				return nil, nil, err
			}
			return id.Auth, id.Close, nil
		},
	}
}

func main() {
	if err := newRootCommand(defaultRuntime()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(rt runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agendactl",
		Short:         "Operator utility for the minha-agenda API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newSweepCommand(rt))
	cmd.AddCommand(newRateLimitCommand(rt))
	cmd.AddCommand(newHashPasswordCommand(rt))
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newSweepCommand(rt runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate sessions whose refresh token has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx := commandContext(cmd)
			s, closeFn, err := rt.openSweeper(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := s.SweepExpiredSessions(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired sessions deactivated\n", n)
			return nil
		},
	}
}

func newRateLimitCommand(rt runtime) *cobra.Command {
	var redisURL string

	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect or reset rate limit counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis URL (defaults to REDIS_URL)")

	open := func(cmd *cobra.Command) (*app.RateLimit, error) {
		cfg, err := rt.loadConfig()
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if redisURL != "" {
			cfg.RedisURL = redisURL
		}
		return app.OpenRateLimit(commandContext(cmd), cfg)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print counter key totals per window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rl.Close() }()

			st, err := rl.Limiter.Stats(commandContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total keys:     %d\n", st.TotalKeys)
			fmt.Fprintf(out, "minute keys:    %d\n", st.MinuteKeys)
			fmt.Fprintf(out, "hour keys:      %d\n", st.HourKeys)
			fmt.Fprintf(out, "day keys:       %d\n", st.DayKeys)
			fmt.Fprintf(out, "total requests: %d\n", st.TotalRequests)
			return nil
		},
	})

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every rate limit counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear counters without --yes")
			}
			rl, err := open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rl.Close() }()

			n, err := rl.Limiter.ClearAll(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d keys deleted\n", n)
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	cmd.AddCommand(clearCmd)
	return cmd
}

func newHashPasswordCommand(rt runtime) *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cost == 0 {
				cfg, err := rt.loadConfig()
				if err != nil {
					return fmt.Errorf("config: %w", err)
				}
				cost = cfg.BcryptCost
			}
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}
			if password == "" {
				return errors.New("password is empty")
			}
			hash, err := security.NewPasswordHasher(cost).Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (defaults to BCRYPT_COST)")
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
