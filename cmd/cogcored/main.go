// Command cogcored runs the cognitive core runtime: the HTTP ingress
// surface and the background Autonomy Controller loop, plus operator
// subcommands for one-off cycles and introspection. Grounded on the
// teacher's cobra root-command-plus-subcommands shape
// (None9527-NGOClaw/gateway/cmd/cli/main.go), layered with viper for
// config-file/env/flag merge per spec.md §6's configuration surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nouscore/cogcore/internal/app"
	"github.com/nouscore/cogcore/internal/config"
)

const binName = "cogcored"

// exit codes per spec.md §6.
const (
	exitSuccess       = 0
	exitRefused       = 1
	exitOverloaded    = 2
	exitTimeout       = 3
	exitConfiguration = 10
)

func main() {
	root := &cobra.Command{
		Use:   binName,
		Short: "cogcore — autonomous agent cognitive core runtime",
	}

	root.PersistentFlags().String("config", "", "path to a config file (yaml/json/toml)")
	root.PersistentFlags().String("http-addr", "", "override COGCORE_HTTP_ADDR")
	_ = viper.BindPFlag("http_addr", root.PersistentFlags().Lookup("http-addr"))

	root.AddCommand(
		newServeCmd(),
		newTickCmd(),
		newResetEconomyCmd(),
		newWhyCmd(),
		newWhatChangedCmd(),
		newVitalsCmd(),
		newEPEReportCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfiguration)
	}
}

// loadConfig merges defaults → env → viper config file → CLI flags, per
// spec.md §6. Viper owns the file+flag layer; config.NewConfig owns
// defaults+env, matching the teacher's split between environment-derived
// and file-derived configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var opts []config.Option
	if addr := viper.GetString("http_addr"); addr != "" {
		opts = append(opts, config.WithHTTPAddr(addr))
	}
	if secret := viper.GetString("jwt_secret"); secret != "" {
		opts = append(opts, config.WithJWTSecret(secret))
	}
	if path := viper.GetString("epe_policy_path"); path != "" {
		opts = append(opts, config.WithEPEPolicyPath(path))
	}

	return config.NewConfig(opts...)
}

func buildCore(cmd *cobra.Command) (*app.Core, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP ingress surface and the background autonomy loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cmd)
			if err != nil {
				os.Exit(exitConfiguration)
			}
			defer core.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go core.RunAutonomyLoop(ctx)

			httpServer := &http.Server{
				Addr:    core.Config.HTTPAddr,
				Handler: core.API.Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				core.Logger.Info("listening", map[string]interface{}{"addr": core.Config.HTTPAddr})
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-quit:
				core.Logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})
			case err := <-errCh:
				core.Logger.Error("http server failed", map[string]interface{}{"error": err.Error()})
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "run one Autonomy Controller cycle and print its outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cmd)
			if err != nil {
				os.Exit(exitConfiguration)
			}
			defer core.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := core.Controller.RunCycle(ctx)
			if err != nil {
				return err
			}
			printJSON(result)
			if result.Status == "rejected" {
				os.Exit(exitRefused)
			}
			return nil
		},
	}
}

func newResetEconomyCmd() *cobra.Command {
	var budget, reserve float64
	cmd := &cobra.Command{
		Use:   "reset-economy",
		Short: "reset the Economy to a fresh budget and reserve",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cmd)
			if err != nil {
				os.Exit(exitConfiguration)
			}
			defer core.Close()
			core.Economy.Reset(budget, reserve)
			printJSON(core.Economy.Snapshot())
			return nil
		},
	}
	cmd.Flags().Float64Var(&budget, "budget", 1000, "starting budget")
	cmd.Flags().Float64Var(&reserve, "reserve", 5000, "reserve ceiling")
	return cmd
}

func newWhyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "why [outcome-id]",
		Short: "explain the causal chain behind an outcome node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cmd)
			if err != nil {
				os.Exit(exitConfiguration)
			}
			defer core.Close()
			printJSON(core.CML.Why(args[0]))
			return nil
		},
	}
}

func newWhatChangedCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "what-changed",
		Short: "report significant shifts in decision behavior over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cmd)
			if err != nil {
				os.Exit(exitConfiguration)
			}
			defer core.Close()
			now := time.Now()
			printJSON(core.CML.WhatChanged(now.Add(-since), now))
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 1*time.Hour, "lookback window")
	return cmd
}

func newVitalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vitals",
		Short: "print current budget, ROI and evolution vitals",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cmd)
			if err != nil {
				os.Exit(exitConfiguration)
			}
			defer core.Close()
			printJSON(struct {
				Economy  interface{} `json:"economy"`
				Evolution interface{} `json:"evolution"`
			}{core.Economy.Snapshot(), core.Evolution.PolicyReport()})
			return nil
		},
	}
}

func newEPEReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "epe-report",
		Short: "print the Evolution Policy Engine's introspection report",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := buildCore(cmd)
			if err != nil {
				os.Exit(exitConfiguration)
			}
			defer core.Close()
			printJSON(core.Evolution.PolicyReport())
			return nil
		},
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
