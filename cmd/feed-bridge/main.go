package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/internal/app"
	"github.com/YaganovValera/feed-bridge/internal/config"
	"github.com/YaganovValera/feed-bridge/internal/token"
	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "feed-bridge",
		Short:         "Bridge the MQTT-over-WebSocket market feed to hubs, Kafka and operators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML); ENV FEEDBRIDGE_* overrides")

	root.AddCommand(newServeCmd(&cfgFile), newSpliceCmd(), newVersionCmd())
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	var printConfig bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if printConfig {
				if err := cfg.Print(cmd.OutOrStdout()); err != nil {
					return err
				}
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.Info("starting", zap.String("service", cfg.ServiceName), zap.String("version", cfg.ServiceVersion), zap.String("commit", commit))
			return app.Run(ctx, cfg, log)
		},
	}
	cmd.Flags().BoolVar(&printConfig, "print-config", false, "print the loaded configuration with secrets masked")
	return cmd
}

// newSpliceCmd builds a CONNECT packet offline, for checking a captured
// template against a token before deploying it.
func newSpliceCmd() *cobra.Command {
	var (
		templateB64  string
		templateFile string
		tokenValue   string
	)
	cmd := &cobra.Command{
		Use:   "splice",
		Short: "Splice a bearer token into a CONNECT template and print the packet as base64",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readTemplate(templateB64, templateFile)
			if err != nil {
				return err
			}
			tok := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenValue), "Bearer "))
			if tok == "" {
				return fmt.Errorf("--token is required")
			}
			pkt, err := mqttwire.SpliceToken(raw, []byte(tok))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, base64.StdEncoding.EncodeToString(pkt))
			if exp, ok := token.ParseExpiry(tok); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "template %d bytes, packet %d bytes, token exp %d\n", len(raw), len(pkt), exp)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "template %d bytes, packet %d bytes, token exp unknown\n", len(raw), len(pkt))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&templateB64, "template", "", "base64 CONNECT template")
	cmd.Flags().StringVar(&templateFile, "template-file", "", "file holding the base64 CONNECT template")
	cmd.Flags().StringVar(&tokenValue, "token", "", "bearer token to splice in")
	return cmd
}

func readTemplate(b64, file string) ([]byte, error) {
	switch {
	case b64 != "" && file != "":
		return nil, fmt.Errorf("use either --template or --template-file")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		b64 = string(data)
	case b64 == "":
		return nil, fmt.Errorf("--template or --template-file is required")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("template is not valid base64: %w", err)
	}
	return raw, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "feed-bridge %s (%s)\n", version, commit)
		},
	}
}
