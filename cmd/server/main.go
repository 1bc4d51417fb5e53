// Command plantid-server serves the medicinal plant identifier: the upload
// page and the ONNX-backed prediction API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/plant-identifier/internal/client"
	"github.com/Brownie44l1/plant-identifier/internal/config"
	"github.com/Brownie44l1/plant-identifier/internal/logging"
	"github.com/Brownie44l1/plant-identifier/internal/model"
	"github.com/Brownie44l1/plant-identifier/internal/server"
	"github.com/Brownie44l1/plant-identifier/internal/upload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "plantid-server",
		Short: "Serve the medicinal plant identifier",
		Example: `  # Serve with models/ in the working directory
  plantid-server

  # Custom port and model
  plantid-server --port 3000 --model ./leaf.onnx --metadata ./leaf.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: "+config.DefaultConfigFile+" if present)")
	flags.Int("port", 8080, "port to listen on")
	flags.String("model", "", "path to the ONNX model")
	flags.String("metadata", "", "path to the model metadata JSON")
	flags.String("runtime-library", "", "path to the onnxruntime shared library")
	flags.String("predict-endpoint", "", "base URL the upload form submits to (default: this server)")
	flags.Duration("timeout", 0, "prediction request timeout")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, console)")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.InsecureSessionSecret() {
		logger.Warn("using the built-in session secret; set server.session_secret or PLANTID_SERVER__SESSION_SECRET")
	}

	predictor, closeModel, err := loadPredictor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeModel()

	submitter := client.New(cfg.PredictBaseURL(),
		client.WithTimeout(cfg.Predict.Timeout),
		client.WithLogger(logger.Named("client")))

	previews := upload.NewPreviews()
	registry := upload.NewRegistry(previews, submitter, cfg.Upload.FormTTL, logger.Named("upload"))

	srv, err := server.New(server.Options{
		Config:    cfg,
		Predictor: predictor,
		Registry:  registry,
		Previews:  previews,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	logEndpoints(logger, cfg, predictor)

	return srv.Serve(ctx)
}

// loadPredictor fails on unreadable metadata but tolerates a model that
// cannot be opened: the server then starts and reports it as not loaded.
func loadPredictor(cfg *config.Config, logger *zap.Logger) (model.Predictor, func(), error) {
	meta, err := model.LoadMetadata(cfg.Model.Metadata)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("loading model", zap.String("path", cfg.Model.Path))
	classifier, err := model.NewClassifier(model.Options{
		ModelPath:      cfg.Model.Path,
		MetadataPath:   cfg.Model.Metadata,
		RuntimeLibrary: cfg.Model.RuntimeLibrary,
	})
	if err != nil {
		logger.Error("model failed to load, predictions disabled", zap.Error(err))
		return model.Unavailable{Reason: err, Meta: meta}, func() {}, nil
	}
	return classifier, classifier.Close, nil
}

func logEndpoints(logger *zap.Logger, cfg *config.Config, p model.Predictor) {
	md := p.Metadata()
	logger.Info("server configured",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("model_loaded", p.Ready()),
		zap.Strings("classes", md.Classes),
		zap.Int("image_size", md.ImageSize),
		zap.String("predict_endpoint", cfg.PredictBaseURL()+client.PredictPath))
	logger.Info("endpoints",
		zap.Strings("routes", []string{
			"GET  / - upload page",
			"GET  /health - health check",
			"GET  /api/classes - class labels",
			"POST /api/predict/ - predict from image upload (field: file)",
			"POST /api/predict/tensor - predict from preprocessed tensor",
		}))
	logger.Info(fmt.Sprintf(`upload test: curl -X POST -F "file=@leaf.jpg" http://localhost:%d/api/predict/`, cfg.Server.Port))
}
