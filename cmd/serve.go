package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/openprocure/rfp-pilot/internal/ai"
	"github.com/openprocure/rfp-pilot/internal/ai/gemini"
	"github.com/openprocure/rfp-pilot/internal/dispatch"
	"github.com/openprocure/rfp-pilot/internal/intake"
	"github.com/openprocure/rfp-pilot/internal/logger"
	"github.com/openprocure/rfp-pilot/internal/mailer"
	"github.com/openprocure/rfp-pilot/internal/ranking"
	"github.com/openprocure/rfp-pilot/internal/secrets"
	"github.com/openprocure/rfp-pilot/internal/server"
	"github.com/openprocure/rfp-pilot/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rfp-pilot HTTP API",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("addr", "a", "", "listen address for the http api")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

// serve wires the engine together and blocks on the HTTP listener.
func serve(_ *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the rfp-pilot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	st := openStore(config, logger)

	if err := st.AutoMigrate(); err != nil {
		logger.Fatal("migrating the schema", zap.Error(err))
	}

	extractor, comparator, err := newAIClients(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the ai clients",
			zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key-file in the configuration file"),
		)
	}

	mail := newMailer(config, logger)

	autoCreate := false
	if config.Intake != nil {
		autoCreate = config.Intake.AutoCreateVendors
	}

	reconciler := intake.New(intake.Config{AutoCreateVendors: autoCreate}, intake.Deps{
		RFPs:      st.RFPs,
		Vendors:   st.Vendors,
		Responses: st.Responses,
		Proposals: st.Proposals,
		Statuses:  st.Statuses,
		Extractor: extractor,
		Logger:    logger,
	})

	merger := ranking.New(st.Proposals, comparator, logger)

	dispatcher := dispatch.New(dispatch.Deps{
		RFPs:     st.RFPs,
		Vendors:  st.Vendors,
		Statuses: st.Statuses,
		Users:    st.Users,
		Mailer:   mail,
		Logger:   logger,
	})

	serverCfg := server.Config{Debug: viper.GetBool("debug")}
	if config.Server != nil {
		serverCfg.Addr = config.Server.Addr
		serverCfg.AllowedOrigins = config.Server.AllowedOrigins
	}

	srv := server.New(serverCfg, server.Deps{
		Store:      st,
		Extractor:  extractor,
		Reconciler: reconciler,
		Merger:     merger,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	if err := srv.Run(); err != nil {
		logger.Fatal("http api stopped", zap.Error(err))
	}
}

func openStore(config *Config, logger *zap.Logger) *store.Store {
	if config.Database == nil || strings.TrimSpace(config.Database.DSN) == "" {
		logger.Fatal("database dsn is required",
			zap.String("hint", "set database.dsn or the RFP_PILOT_DATABASE_DSN environment variable"),
		)
	}

	st, err := store.Open(config.Database.DSN, logger)
	if err != nil {
		logger.Fatal("connecting to the database", zap.Error(err))
	}

	return st
}

func newMailer(config *Config, logger *zap.Logger) *mailer.SMTP {
	cfg := mailer.Config{}
	if config.SMTP != nil {
		cfg.Host = config.SMTP.Host
		cfg.Port = config.SMTP.Port
		cfg.Username = config.SMTP.Username
		cfg.From = config.SMTP.From

		if config.SMTP.PasswordFile != "" {
			password, err := secrets.Load(secrets.Source{
				Name: "smtp password",
				File: config.SMTP.PasswordFile,
				Env:  "RFP_PILOT_SMTP_PASSWORD",
			})
			if err != nil {
				logger.Fatal("loading the smtp password", zap.Error(err))
			}
			cfg.Password = password
		}
	}

	return mailer.New(cfg, logger)
}

func newAIClients(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Extractor, ai.Comparator, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, nil, errors.New("gemini configuration is required under ai.gemini")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, err
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		return nil, nil, err
	}

	aiLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", generator.Model()),
	)

	extractor := gemini.NewExtractor(generator, aiLogger, cfg.Gemini.MaxLogLength)
	comparator := gemini.NewComparator(generator, aiLogger, cfg.Gemini.MaxLogLength)

	return extractor, comparator, nil
}
