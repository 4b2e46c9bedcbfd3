package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"govee-bridge/config"
	"govee-bridge/internal/domain"
	"govee-bridge/internal/infra/httpapi"
)

type rootOptions struct {
	configPath string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "govee-bridge",
		Short:        "Bridge Govee cloud devices to Home Assistant, MQTT and Prometheus",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to config file")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newSyncCommand(opts),
		newDevicesCommand(opts),
		newStateCommand(opts),
		newIntentCommand(opts, "on <device>", "Turn a device on", cobra.ExactArgs(1), func(_ []string) (domain.Intent, error) {
			return domain.Intent{Action: domain.ActionTurnOn}, nil
		}),
		newIntentCommand(opts, "off <device>", "Turn a device off", cobra.ExactArgs(1), func(_ []string) (domain.Intent, error) {
			return domain.Intent{Action: domain.ActionTurnOff}, nil
		}),
		newIntentCommand(opts, "oscillate <device> on|off", "Toggle fan oscillation", cobra.ExactArgs(2), parseOscillate),
		newIntentCommand(opts, "speed <device> <percent>", "Set fan or purifier speed (0 turns it off)", cobra.ExactArgs(2), parseSpeed),
		newIntentCommand(opts, "mode <device> <preset>", "Set the preset mode", cobra.ExactArgs(2), func(args []string) (domain.Intent, error) {
			return domain.Intent{Action: domain.ActionSetPresetMode, PresetMode: args[1]}, nil
		}),
		newIntentCommand(opts, "humidity <device> <percent>", "Set the target humidity of a thermometer", cobra.ExactArgs(2), parseHumidity),
	)

	return rootCmd
}

// load reads the config and logs to stderr, leaving stdout for command output.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *output, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, &output{w: cmd.OutOrStdout(), logger: setupLogger(cfg.Log, cmd.ErrOrStderr())}, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll devices, publish their state and accept commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, out, err := opts.load(cmd)
			if err != nil {
				return err
			}
			logger := out.logger

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh
				logger.Info("shutting down")
				cancel()
			}()

			a, err := newApp(ctx, cfg, logger, publishers{homeAssistant: true, mqtt: true})
			if err != nil {
				return err
			}
			defer a.close()

			if interval := a.syncInterval(); interval > 0 {
				a.registry.StartPeriodicSync(ctx, interval)
			}

			if a.mqtt != nil {
				if err := a.mqtt.SubscribeCommands(ctx, a.coordinator.Devices(), a.coordinator); err != nil {
					return err
				}
			}

			if cfg.HTTP.Enabled {
				serverOpts := []httpapi.Option{httpapi.WithRateLimiter(httpapi.NewRateLimiter(cfg.HTTP.RateLimit, time.Minute))}
				if a.metrics != nil {
					serverOpts = append(serverOpts, httpapi.WithMetricsHandler(a.metrics.Handler()))
				}
				server := httpapi.NewServer(cfg.HTTP.Addr, cfg.HTTP.AuthToken, a.coordinator, logger, serverOpts...)
				if err := server.Start(ctx); err != nil {
					return fmt.Errorf("starting http api: %w", err)
				}
				defer func() {
					if err := server.Stop(); err != nil {
						logger.Error("stopping http api", "error", err)
					}
				}()
			}

			logger.Info("starting govee bridge", "devices", len(a.coordinator.Devices()))

			if err := a.coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("running coordinator: %w", err)
			}
			return nil
		},
	}
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh every configured device once and publish the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, out, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg, out)
		},
	}
}

func runSync(ctx context.Context, cfg *config.Config, out *output) error {
	a, err := newApp(ctx, cfg, out.logger, publishers{homeAssistant: true, mqtt: true})
	if err != nil {
		return err
	}
	defer a.close()

	states := a.coordinator.RefreshAll(ctx)
	failed := 0
	for _, s := range states {
		if !s.Available {
			failed++
		}
	}
	if err := out.printJSON(states); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d devices failed to refresh", failed, len(states))
	}
	return nil
}

func newDevicesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices on the Govee account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, out, err := opts.load(cmd)
			if err != nil {
				return err
			}

			cfg.Devices = nil
			a, err := newApp(cmd.Context(), cfg, out.logger, publishers{})
			if err != nil {
				return err
			}
			if err := a.registry.Sync(cmd.Context()); err != nil {
				return err
			}

			_, err = io.WriteString(out.w, a.registry.Summary())
			return err
		},
	}
}

func newStateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state <device>",
		Short: "Fetch and print the current state of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, out, err := opts.load(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, out.logger, publishers{})
			if err != nil {
				return err
			}
			if err := a.requireDevice(args[0]); err != nil {
				return err
			}

			state, err := a.coordinator.Refresh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out.printJSON(state)
		},
	}
}

func newIntentCommand(opts *rootOptions, use, short string, args cobra.PositionalArgs, build func([]string) (domain.Intent, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := build(args)
			if err != nil {
				return err
			}

			cfg, out, err := opts.load(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, out.logger, publishers{homeAssistant: true})
			if err != nil {
				return err
			}
			if err := a.requireDevice(args[0]); err != nil {
				return err
			}

			// A one-shot process starts without a snapshot.
			if _, err := a.coordinator.Refresh(cmd.Context(), args[0]); err != nil {
				out.logger.Warn("refreshing before command", "device", args[0], "error", err)
			}

			state, err := a.coordinator.Execute(cmd.Context(), args[0], intent)
			if err != nil {
				return err
			}
			return out.printJSON(state)
		},
	}
}

func parseOscillate(args []string) (domain.Intent, error) {
	switch strings.ToLower(args[1]) {
	case "on", "true", "1":
		return domain.Intent{Action: domain.ActionOscillate, On: true}, nil
	case "off", "false", "0":
		return domain.Intent{Action: domain.ActionOscillate, On: false}, nil
	default:
		return domain.Intent{}, fmt.Errorf("oscillate expects on or off, got %q", args[1])
	}
}

func parseSpeed(args []string) (domain.Intent, error) {
	pct, err := parsePercent(args[1])
	if err != nil {
		return domain.Intent{}, err
	}
	return domain.Intent{Action: domain.ActionSetPercentage, Percentage: pct}, nil
}

func parseHumidity(args []string) (domain.Intent, error) {
	pct, err := parsePercent(args[1])
	if err != nil {
		return domain.Intent{}, err
	}
	return domain.Intent{Action: domain.ActionSetHumidity, Humidity: pct}, nil
}

func parsePercent(raw string) (float64, error) {
	pct, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing percentage: %w", err)
	}
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("percentage must be between 0 and 100, got %g", pct)
	}
	return pct, nil
}

type output struct {
	w      io.Writer
	logger *slog.Logger
}

func (o *output) printJSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
