package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sapliy/pm-portal/internal/relay"
	"github.com/sapliy/pm-portal/pkg/messaging"
	"github.com/sapliy/pm-portal/pkg/observability"
	portal "github.com/sapliy/pm-portal/sdks/go"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward pushed notifications to Kafka, RabbitMQ and e-mail",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		metrics := observability.NewMetrics()
		a, err := authedApp(ctx, portal.WithMetrics(metrics))
		if err != nil {
			return err
		}
		defer a.close()

		sinks, closeSinks, err := buildSinks(a.logger)
		if err != nil {
			return err
		}
		defer closeSinks()
		if len(sinks) == 0 {
			return errors.New("no sinks configured, set kafka_brokers, rabbitmq_url or alert_email")
		}

		opts := []relay.Option{relay.WithLogger(a.logger), relay.WithMetrics(metrics)}
		if url := viper.GetString("redis_url"); url != "" {
			redisOpts, err := redis.ParseURL(url)
			if err != nil {
				return fmt.Errorf("parse redis_url: %w", err)
			}
			rdb := redis.NewClient(redisOpts)
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				a.logger.Warn("Redis unavailable, relaying without de-duplication", "error", err)
			} else {
				opts = append(opts, relay.WithRedis(rdb))
			}
		}

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				a.logger.Info("Serving metrics", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("Metrics server failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Relaying to %s\n", sinkNames(sinks))
		err = relay.New(a.client, sinks, opts...).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func buildSinks(logger *observability.Logger) ([]relay.Sink, func(), error) {
	var sinks []relay.Sink
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if brokers := listSetting("kafka_brokers"); len(brokers) > 0 {
		producer := messaging.NewKafkaProducer(brokers, viper.GetString("kafka_topic"))
		closers = append(closers, func() { _ = producer.Close() })
		sinks = append(sinks, relay.NewKafkaSink(producer))
	}

	if url := viper.GetString("rabbitmq_url"); url != "" {
		client, err := messaging.NewRabbitMQClient(messaging.DefaultConfig(url), logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		closers = append(closers, client.Close)
		queue := viper.GetString("rabbitmq_queue")
		if _, err := client.DeclareQueueWithDLQ(queue); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
		sinks = append(sinks, relay.NewQueueSink(client, queue))
	}

	if to := viper.GetString("alert_email"); to != "" {
		mailer := relay.NewResendMailer(viper.GetString("resend_api_key"), viper.GetString("from_email"))
		sinks = append(sinks, relay.NewEmailSink(mailer, to, viper.GetString("portal_url")))
	}

	return sinks, closeAll, nil
}

// listSetting accepts both YAML lists and comma separated env values.
func listSetting(key string) []string {
	var out []string
	for _, v := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func sinkNames(sinks []relay.Sink) string {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, ", ")
}

var relayTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print relayed notifications from the Kafka topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		brokers := listSetting("kafka_brokers")
		if len(brokers) == 0 {
			return errors.New("kafka_brokers is not configured")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := observability.NewLogger(serviceName, observability.WithOutput(os.Stderr))
		group, _ := cmd.Flags().GetString("group")
		consumer := messaging.NewKafkaConsumer(brokers, viper.GetString("kafka_topic"), group, logger)
		defer consumer.Close()

		out := cmd.OutOrStdout()
		consumer.Consume(ctx, func(key string, value []byte) error {
			var msg relay.Message
			if err := json.Unmarshal(value, &msg); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			fmt.Fprintf(out, "%s  #%d  %s  %s\n", msg.RelayedAt.Local().Format(time.DateTime), msg.NotificationID, msg.Title, msg.JiraReference)
			return nil
		})
		return nil
	},
}

func init() {
	relayCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	relayTailCmd.Flags().String("group", "portal-relay-tail", "Kafka consumer group")

	relayCmd.AddCommand(relayTailCmd)
	rootCmd.AddCommand(relayCmd)
}
