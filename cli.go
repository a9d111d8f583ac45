package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/descriptor"
	"github.com/example/face-verify/internal/logging"
	"github.com/example/face-verify/internal/usecase"
)

type rootOptions struct {
	envFiles []string
	logLevel string
}

// applicationBuilder is swapped in tests to avoid dialing real backends.
var applicationBuilder = buildApplication

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "face-verify",
		Short:         "Single-identity face verification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Dotenv files to load before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(opts)
			},
		},
		newImageCommand(opts, "enroll", "Enroll the face in an image as the reference", runEnroll),
		newImageCommand(opts, "verify", "Verify the face in an image against the reference", runVerify),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return err
	}
	defer logger.Sync()

	if err := runServer(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

type imageRunner func(ctx context.Context, uc *usecase.VerificationUseCase, payload string, out io.Writer) error

func newImageCommand(opts *rootOptions, use, short string, run imageRunner) *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			app, err := applicationBuilder(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			payload := base64.StdEncoding.EncodeToString(raw)
			return run(cmd.Context(), app.uc, payload, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path to a JPEG, PNG or GIF image")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func runEnroll(ctx context.Context, uc *usecase.VerificationUseCase, payload string, out io.Writer) error {
	outcome, err := uc.Enroll(ctx, "", payload)
	if err != nil {
		writeCommandError(out, err)
		return err
	}
	return writeJSON(out, map[string]interface{}{
		"message":    outcome.Message,
		"request_id": outcome.RequestID,
		"dimension":  outcome.Dimension,
	})
}

func runVerify(ctx context.Context, uc *usecase.VerificationUseCase, payload string, out io.Writer) error {
	result, err := uc.Verify(ctx, "", payload)
	if err != nil {
		writeCommandError(out, err)
		return err
	}
	return writeJSON(out, map[string]interface{}{
		"match":      result.Match,
		"distance":   descriptor.FormatScore(result.Distance),
		"similarity": descriptor.FormatScore(result.Similarity),
		"threshold":  result.Threshold,
		"request_id": result.RequestID,
	})
}

func writeCommandError(out io.Writer, err error) {
	_ = writeJSON(out, map[string]interface{}{
		"error": err.Error(),
		"code":  string(usecase.KindOf(err)),
	})
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
