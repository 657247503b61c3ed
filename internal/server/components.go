package server

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/config"
	collyfetcher "github.com/JakeFAU/sitepdf/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/sitepdf/internal/fetcher/headless"
	"github.com/JakeFAU/sitepdf/internal/pdf"
	"github.com/JakeFAU/sitepdf/internal/summary"
)

func browserLauncher(cfg config.Config, logger *zap.Logger) *headlessfetcher.Launcher {
	logger.Info("using headless capture",
		zap.String("user_agent", cfg.Capture.UserAgent),
		zap.Duration("settle", cfg.Capture.Settle),
	)
	return headlessfetcher.NewLauncher(headlessfetcher.Config{
		UserAgent: cfg.Capture.UserAgent,
		Settle:    cfg.Capture.Settle,
		ExecPath:  cfg.Capture.ChromePath,
	}, logger)
}

func collyLauncher(cfg config.Config, logger *zap.Logger) *collyfetcher.Launcher {
	logger.Info("using static capture for fast mode", zap.String("user_agent", cfg.Capture.UserAgent))
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Capture.UserAgent,
		Timeout:   cfg.Capture.NavTimeout,
	}, logger)
}

func newGenerator(cfg config.Config, logger *zap.Logger) *pdf.Generator {
	return pdf.NewGenerator(pdf.Options{
		FontPath: cfg.PDF.FontPath,
		Outline:  cfg.PDF.Outline,
	}, logger)
}

// newSummarizer returns nil when summaries are disabled; the pipeline then
// answers summary requests with a warning.
func newSummarizer(cfg config.Config, logger *zap.Logger) summary.Summarizer {
	if !cfg.Summary.Enabled {
		logger.Info("summaries disabled")
		return nil
	}
	client := summary.NewChatClient(summary.ClientConfig{
		APIKey:  cfg.Summary.APIKey,
		BaseURL: cfg.Summary.BaseURL,
		Model:   cfg.Summary.Model,
		Timeout: cfg.Summary.Timeout,
	}, nil, logger)
	logger.Info("summaries enabled", zap.String("model", client.Model()))
	return summary.NewModelSummarizer(client, cfg.Summary.Model, cfg.Summary.MaxChars, logger)
}
