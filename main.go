package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ahmadzakiakmal/medichain/app"
	"github.com/ahmadzakiakmal/medichain/auth"
	"github.com/ahmadzakiakmal/medichain/bench"
	"github.com/ahmadzakiakmal/medichain/client"
	"github.com/ahmadzakiakmal/medichain/config"
	"github.com/ahmadzakiakmal/medichain/events"
	"github.com/ahmadzakiakmal/medichain/ledger"
	"github.com/ahmadzakiakmal/medichain/metrics"
	"github.com/ahmadzakiakmal/medichain/payment"
	"github.com/ahmadzakiakmal/medichain/recognition"
	"github.com/ahmadzakiakmal/medichain/repository"
	"github.com/ahmadzakiakmal/medichain/server"
	service_registry "github.com/ahmadzakiakmal/medichain/srvreg"
	cfg "github.com/cometbft/cometbft/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	nm "github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmtrpc "github.com/cometbft/cometbft/rpc/client/local"
	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	envFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medichain",
		Short: "MediChain hospital medicine sharing backend",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a medichain config file (toml, yaml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(benchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env, binds the command's flags and decodes the configuration
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config.LoadDotEnv(envFile)
	v := config.New()
	bind := map[string]string{
		"port":        "server.port",
		"ledger":      "ledger.enabled",
		"ledger-home": "ledger.home",
		"log-level":   "log_level",
	}
	for flag, key := range bind {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	return config.Load(v, configFile)
}

func newLogger(level string) (cmtlog.Logger, error) {
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	return cmtflags.ParseLogLevel(level, logger, "info")
}

func openRepository(c *config.Config, logger cmtlog.Logger) (*repository.Repository, error) {
	db, err := repository.OpenPostgres(c.Database.URL, c.Database.ConnectAttempts, logger)
	if err != nil {
		return nil, err
	}
	repo := repository.NewRepository(db, logger, repository.Options{
		StrictTransitions: c.Orders.StrictTransitions,
		WebhookReputation: c.Orders.WebhookReputation,
	})
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return repo, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the ledger node when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(c)
		},
	}
	cmd.Flags().String("port", "", "HTTP web server port")
	cmd.Flags().Bool("ledger", false, "Run the CometBFT ledger node")
	cmd.Flags().String("ledger-home", "", "Path to the CometBFT config directory")
	cmd.Flags().String("log-level", "", "Log level")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(c.LogLevel)
			if err != nil {
				return err
			}
			if _, err := openRepository(c, logger); err != nil {
				return err
			}
			logger.Info("Database schema is up to date")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo hospitals and their stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(c.LogLevel)
			if err != nil {
				return err
			}
			repo, err := openRepository(c, logger)
			if err != nil {
				return err
			}
			hasher := auth.NewArgon2Hasher(auth.DefaultArgon2Params)
			return repo.Seed(hasher.Hash)
		},
	}
}

func benchCmd() *cobra.Command {
	var (
		baseURL    string
		iterations int
		output     string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time the order workflow against a running API and write the results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
			if output == "" {
				output = fmt.Sprintf("benchmark_n_%d.csv", iterations)
			}
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating CSV file: %w", err)
			}
			defer file.Close()

			err = bench.Run(client.NewHTTPClient(baseURL), bench.Options{
				Iterations: iterations,
				Pause:      100 * time.Millisecond,
				Logger:     logger,
			}, file)
			if err != nil {
				return err
			}
			logger.Info("Benchmark complete", "file", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:5000", "Base URL of the API")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1, "Number of iterations to run")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV output file")
	return cmd
}

func runServer(c *config.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(c.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	repo, err := openRepository(c, logger)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenManager(c.Auth.JWTSecret, c.Auth.TokenTTL)
	if err != nil {
		return err
	}

	m := metrics.New()
	notifier := newNotifier(c, logger)
	defer notifier.Close()

	deps := service_registry.Dependencies{
		Repository:         repo,
		Hasher:             auth.NewArgon2Hasher(auth.DefaultArgon2Params),
		Tokens:             tokens,
		PaymentKeySecret:   c.Razorpay.KeySecret,
		WebhookSecret:      c.Razorpay.WebhookSecret,
		Currency:           c.Razorpay.Currency,
		RecognitionTimeout: c.Gemini.Timeout,
		Notifier:           notifier,
		Metrics:            m,
		Logger:             logger,
	}

	if c.Razorpay.KeyID != "" && c.Razorpay.KeySecret != "" {
		gateway, err := payment.NewRazorpayGateway(c.Razorpay.KeyID, c.Razorpay.KeySecret, logger)
		if err != nil {
			return err
		}
		deps.Gateway = gateway
	} else {
		logger.Info("Razorpay keys not configured, payment creation is disabled")
	}
	if c.Razorpay.WebhookSecret == "" {
		logger.Info("Razorpay webhook secret not configured, webhooks will be rejected")
	}

	if c.Gemini.APIKey != "" {
		recognizer, err := recognition.NewGeminiRecognizer(context.Background(), c.Gemini.APIKey, c.Gemini.Model, logger)
		if err != nil {
			return err
		}
		defer recognizer.Close()
		deps.Recognizer = recognizer
	} else {
		logger.Info("Gemini API key not configured, image intake uses the filename fallback")
	}

	var node *nm.Node
	if c.Ledger.Enabled {
		var db *badger.DB
		node, db, err = startLedgerNode(c.Ledger.Home, logger)
		if err != nil {
			return err
		}
		defer func() {
			node.Stop()
			node.Wait()
			if err := db.Close(); err != nil {
				logger.Error("Closing ledger database", "err", err)
			}
		}()
		deps.Ledger = ledger.NewClient(cmtrpc.New(node), c.Ledger.Timeout, logger)
	}

	serviceRegistry := service_registry.NewServiceRegistry(deps)
	serviceRegistry.RegisterDefaultServices()

	webserver := server.NewWebServer(server.Options{
		Port:           c.Server.Port,
		AllowedOrigins: c.Server.CORSOrigins,
		RateLimit:      c.Server.RateLimit,
		RateBurst:      c.Server.RateBurst,
		RequestTimeout: c.Server.RequestTimeout,
		TrustProxy:     c.Server.TrustProxy,
	}, serviceRegistry, m, node, logger)
	if err := webserver.Start(); err != nil {
		return fmt.Errorf("starting HTTP server: %w", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webserver.Shutdown(ctx); err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
	return nil
}

func newNotifier(c *config.Config, logger cmtlog.Logger) *events.Notifier {
	var orders, emergencies events.Publisher
	if len(c.Kafka.Brokers) > 0 {
		orders = events.NewKafkaProducer(c.Kafka.Brokers, c.Kafka.Topic)
		logger.Info("Publishing order events to Kafka", "brokers", c.Kafka.Brokers, "topic", c.Kafka.Topic)
	}
	if c.RabbitMQ.URL != "" {
		broadcaster, err := events.NewRabbitBroadcaster(c.RabbitMQ.URL, c.RabbitMQ.Queue)
		if err != nil {
			logger.Error("RabbitMQ unavailable, emergency broadcasts are only logged", "err", err)
		} else {
			emergencies = broadcaster
		}
	}
	return events.NewNotifier(orders, emergencies, 5*time.Second, logger)
}

// startLedgerNode boots the in-process CometBFT node running the ledger application
func startLedgerNode(homeDir string, logger cmtlog.Logger) (*nm.Node, *badger.DB, error) {
	config := cfg.DefaultConfig()
	config.SetRoot(homeDir)
	nodeViper := viper.New()
	nodeViper.SetConfigFile(filepath.Join(homeDir, "config", "config.toml"))
	if err := nodeViper.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	if err := nodeViper.Unmarshal(config); err != nil {
		return nil, nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.ValidateBasic(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration data: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(filepath.Join(homeDir, "badger")))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	ledgerApp := app.NewABCIApplication(db, logger)

	pv := privval.LoadFilePV(
		config.PrivValidatorKeyFile(),
		config.PrivValidatorStateFile(),
	)

	nodeKey, err := p2p.LoadNodeKey(config.NodeKeyFile())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load node's key: %w", err)
	}

	nodeLogger, err := cmtflags.ParseLogLevel(config.LogLevel, logger, cfg.DefaultLogLevel)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	node, err := nm.NewNode(
		context.Background(),
		config,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(ledgerApp),
		nm.DefaultGenesisDocProviderFunc(config),
		cfg.DefaultDBProvider,
		nm.DefaultMetricsProvider(config.Instrumentation),
		nodeLogger,
	)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating node: %w", err)
	}

	if err := node.Start(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("starting node: %w", err)
	}
	logger.Info("Ledger node started", "node_id", node.NodeInfo().ID(), "home", homeDir)
	return node, db, nil
}
