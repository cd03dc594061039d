package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sapliy/pm-portal/internal/dashboard"
	"github.com/sapliy/pm-portal/internal/session"
	"github.com/sapliy/pm-portal/pkg/observability"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

const serviceName = "portal-cli"

var (
	cfgFile string
	verbose bool
)

var errNotLoggedIn = errors.New("not logged in, run 'portal login' first")

var rootCmd = &cobra.Command{
	Use:           "portal",
	Short:         "PM Notification Portal CLI",
	Long:          `Review, edit and send release notifications from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", portal.Message(err, err.Error()))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.portal.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().String("backend-url", "", "portal API base URL")
	_ = viper.BindPFlag("backend_url", rootCmd.PersistentFlags().Lookup("backend-url"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".portal")

		// Create config file if it doesn't exist
		configPath := filepath.Join(home, ".portal.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			f, err := os.Create(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to create config file: %v\n", err)
			} else {
				f.Close()
			}
		}
	}

	viper.SetDefault("backend_url", portal.DefaultBaseURL)
	viper.SetDefault("kafka_topic", "release-notes")
	viper.SetDefault("rabbitmq_queue", "release-notes")

	viper.SetEnvPrefix("PORTAL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// app is the per-command wiring: logger, tracer, SDK client, session and
// controller.
type app struct {
	logger   *observability.Logger
	client   *portal.Client
	ctrl     *dashboard.Controller
	shutdown func(context.Context) error
}

func newApp(ctx context.Context, opts ...portal.ClientOption) (*app, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewLogger(serviceName, observability.WithOutput(os.Stderr), observability.WithLevel(level))

	shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Endpoint:       viper.GetString("otel_endpoint"),
		Environment:    viper.GetString("environment"),
	}, logger)
	if err != nil {
		return nil, err
	}

	opts = append([]portal.ClientOption{portal.WithBaseURL(viper.GetString("backend_url"))}, opts...)
	client := portal.NewClient(opts...)
	sess := session.New(client, session.NewViperStore(viper.GetViper()), logger)
	return &app{
		logger:   logger,
		client:   client,
		ctrl:     dashboard.New(client, sess, logger),
		shutdown: shutdown,
	}, nil
}

// authedApp restores the stored session and fails when it is no longer
// valid.
func authedApp(ctx context.Context, opts ...portal.ClientOption) (*app, error) {
	a, err := newApp(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if a.ctrl.Start(ctx) == nil {
		a.close()
		return nil, errNotLoggedIn
	}
	return a, nil
}

func (a *app) close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("Failed to shut down tracer", "error", err)
	}
}

func main() {
	Execute()
}
