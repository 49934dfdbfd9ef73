package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/tumor-detection-service/config"
	"github.com/Tutortoise/tumor-detection-service/detections"
	"github.com/Tutortoise/tumor-detection-service/labels"
	"github.com/Tutortoise/tumor-detection-service/logging"
	"github.com/Tutortoise/tumor-detection-service/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	envErr := config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("tumor-detect", false).Error("Failed to load configuration", "error", err)
		return 1
	}

	logger := logging.NewLogger("tumor-detect", cfg.Debug)
	if envErr != nil {
		logger.Debug("No .env file, using process environment", "error", envErr)
	}

	table, err := labels.Load(cfg.LabelsPath, cfg.LabelsRequired)
	if err != nil {
		logger.Error("Failed to load label table", "error", err)
		return 1
	}
	logger.Info("Label table loaded", "path", cfg.LabelsPath, "classes", table.Len())

	modelPath, err := cfg.AbsModelPath()
	if err != nil {
		logger.Error("Failed to resolve model path", "error", err)
		return 1
	}

	cpu := detections.DetectCPUFeatures()
	logger.Info("CPU features", "arch", cpu.Arch, "cores", cpu.Cores, "avx2", cpu.AVX2, "avx512", cpu.AVX512, "asimd", cpu.ASIMD)

	predictor, cleanup, err := startModel(cfg, modelPath, table, logger)
	defer cleanup()
	if err != nil {
		logger.Error("Failed to start server", "error", err)
		return 1
	}

	page, err := clientPage()
	if err != nil {
		logger.Error("Failed to open embedded client page", "error", err)
		return 1
	}

	handler := server.NewHandler(server.Options{
		Model:          predictor,
		ModelPath:      modelPath,
		Labels:         table,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxImagePixels: cfg.MaxImagePixels,
	})

	srv := &http.Server{
		Handler:      server.NewRouter(handler, page, cfg.CORSOrigin),
		Addr:         cfg.Addr(),
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", srv.Addr, "model_loaded", handler.ModelLoaded())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", "error", err)
			return 1
		}
	}
	return 0
}

// startModel loads the model and returns it as a Predictor. A load failure
// is returned only when cfg.RequireModel is set; otherwise the Predictor is a
// nil interface and the service runs without a model. cleanup is never nil.
func startModel(cfg *config.Config, modelPath string, table *labels.Table, logger *logging.Logger) (server.Predictor, func(), error) {
	model, destroyRuntime, err := loadModel(cfg, modelPath, logger)
	cleanup := func() {
		if model != nil {
			model.Destroy()
		}
		if destroyRuntime != nil {
			destroyRuntime()
		}
	}
	if err != nil {
		if cfg.RequireModel {
			return nil, cleanup, err
		}
		logger.Warn("Serving without a model", "error", err)
		// must stay a nil interface, not a typed nil pointer
		return nil, cleanup, nil
	}

	for _, idx := range table.Indices() {
		if idx >= model.NumClasses() {
			logger.Warn("Label table entry beyond model classes", "class", idx, "model_classes", model.NumClasses())
		}
	}
	return model, cleanup, nil
}

// loadModel initialises ONNX Runtime and builds the model handle. The
// returned destroy func is non-nil whenever the runtime was initialised.
func loadModel(cfg *config.Config, modelPath string, logger *logging.Logger) (*detections.Model, func(), error) {
	logger.Info("Loading model", "path", modelPath, "runtime", cfg.ORTLibPath)

	destroy, err := detections.InitRuntime(cfg.ORTLibPath)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	model, err := detections.LoadModel(detections.Options{
		Path:           modelPath,
		InputSize:      cfg.InputSize,
		ConfThreshold:  cfg.ConfThreshold,
		IoUThreshold:   cfg.IoUThreshold,
		MaxDetections:  cfg.MaxDetections,
		PoolSize:       cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
	})
	if err != nil {
		return nil, destroy, err
	}

	logger.Info("Model loaded successfully",
		"path", model.Path(),
		"input_size", model.InputSize(),
		"classes", model.NumClasses(),
		"sessions", cfg.PoolSize,
		"elapsed", time.Since(start))
	return model, destroy, nil
}
