// Package main provides the edgeface CLI: export EdgeFace face embedding
// checkpoints to ONNX, inspect exported models, and fetch checkpoints.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgeface-ml/edgeface/export"
	"github.com/edgeface-ml/edgeface/internal/config"
	"github.com/edgeface-ml/edgeface/internal/storage"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	var debug bool
	root := &cobra.Command{
		Use:   "edgeface",
		Short: "edgeface exports EdgeFace face embedding models to ONNX",
		Long: `edgeface converts EdgeFace checkpoints into ONNX models ready for
deployment: opset 14, a dynamic batch axis, and "input"/"embedding"
tensor names. The export-single command additionally guarantees a single
self-contained output file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", cfg.Debug, "enable debug logging")

	logger := func() *zap.SugaredLogger {
		if debug {
			l, _ := zap.NewDevelopment()
			return l.Sugar()
		}
		l, _ := zap.NewProduction()
		return l.Sugar()
	}

	root.AddCommand(
		newExportCmd(cfg, logger),
		newExportSingleCmd(cfg, logger),
		newInspectCmd(),
		newFetchCmd(cfg, logger),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// exportFlags adds the flags shared by both export commands.
func exportFlags(cmd *cobra.Command, cfg *config.Config, opts *exportArgs) {
	cmd.Flags().StringVar(&opts.model, "model", cfg.Model, "model variant to export")
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", cfg.CheckpointPath, "checkpoint file to load")
	cmd.Flags().Int64Var(&opts.opset, "opset", cfg.Opset, "ONNX opset version to target")
	cmd.Flags().Int64Var(&opts.threshold, "external-threshold", cfg.ExternalThreshold,
		"spill initializers above this byte size to a .data sidecar (0 keeps everything inline)")
	cmd.Flags().BoolVar(&opts.noFold, "no-fold", false, "disable constant folding")
}

type exportArgs struct {
	model      string
	checkpoint string
	output     string
	final      string
	opset      int64
	threshold  int64
	noFold     bool
}

func (a *exportArgs) options() export.Options {
	opts := export.DefaultOptions()
	opts.OpsetVersion = a.opset
	opts.ExternalThreshold = a.threshold
	opts.ConstantFolding = !a.noFold
	return opts
}

// checkCheckpoint logs the standard message when the checkpoint is absent.
// Export commands treat every failure as a logged condition, not an exit
// code, so batch pipelines that tolerate missing artifacts keep running.
func checkCheckpoint(path string, sugar *zap.SugaredLogger) bool {
	if !export.CheckpointExists(path) {
		sugar.Errorw("checkpoint not found, nothing to export", "path", path)
		return false
	}
	return true
}

func newExportCmd(cfg *config.Config, logger func() *zap.SugaredLogger) *cobra.Command {
	args := &exportArgs{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a checkpoint to ONNX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sugar := logger()
			defer sugar.Sync()

			if !checkCheckpoint(args.checkpoint, sugar) {
				return nil
			}
			result, err := export.Run(args.model, args.checkpoint, args.output, args.options())
			if err != nil {
				sugar.Errorw("export failed", "model", args.model, "error", err)
				return nil
			}
			sugar.Infow("export complete",
				"model", args.model,
				"path", result.Path,
				"bytes", result.Bytes)
			if result.SidecarPath != "" {
				sugar.Warnw("export produced an external data sidecar; "+
					"both files are required to load the model",
					"sidecar", result.SidecarPath)
			}
			return nil
		},
	}
	exportFlags(cmd, cfg, args)
	cmd.Flags().StringVar(&args.output, "output", cfg.OutputPath, "output model path")
	return cmd
}

func newExportSingleCmd(cfg *config.Config, logger func() *zap.SugaredLogger) *cobra.Command {
	args := &exportArgs{}
	cmd := &cobra.Command{
		Use:   "export-single",
		Short: "Export a checkpoint to a single self-contained ONNX file",
		Long: `Export a checkpoint and guarantee exactly one output file. If the
export spills weights to an external data sidecar, the model is reloaded,
re-saved with every tensor embedded, and the intermediates are removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sugar := logger()
			defer sugar.Sync()

			if !checkCheckpoint(args.checkpoint, sugar) {
				return nil
			}
			final, err := export.SingleFile(args.model, args.checkpoint, args.output, args.final, args.options())
			if err != nil {
				sugar.Errorw("single-file export failed", "model", args.model, "error", err)
				return nil
			}
			info, err := os.Stat(final)
			if err != nil {
				sugar.Errorw("stat final model", "path", final, "error", err)
				return nil
			}
			sugar.Infow("single-file export complete", "path", final, "bytes", info.Size())
			return nil
		},
	}
	exportFlags(cmd, cfg, args)
	cmd.Flags().StringVar(&args.output, "output", cfg.SinglePath, "intermediate model path")
	cmd.Flags().StringVar(&args.final, "final", cfg.FinalPath, "final model path")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <model.onnx>",
		Short: "Print metadata of an exported model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := export.GetModelInfo(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("IR version:    %d\n", info.IRVersion)
			fmt.Printf("Opset:         %d\n", info.OpsetVersion)
			fmt.Printf("Producer:      %s %s\n", info.ProducerName, info.ProducerVersion)
			fmt.Printf("Graph:         %s\n", info.GraphName)
			fmt.Printf("Inputs:        %v\n", info.InputNames)
			fmt.Printf("Outputs:       %v\n", info.OutputNames)
			fmt.Printf("Nodes:         %d\n", info.NodeCount)
			fmt.Printf("Initializers:  %d\n", info.InitializerCount)
			fmt.Printf("Weight bytes:  %d\n", info.WeightBytes)
			fmt.Printf("Operators:     %v\n", info.Operators)
			if info.ExternalWeights {
				fmt.Println("External data: yes (a .data sidecar is required)")
			}
			return nil
		},
	}
}

func newFetchCmd(cfg *config.Config, logger func() *zap.SugaredLogger) *cobra.Command {
	var uri, dest string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a checkpoint from S3",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sugar := logger()
			defer sugar.Sync()

			bucket := cfg.S3Bucket
			key := ""
			if uri != "" {
				var err error
				if bucket, key, err = storage.ParseURI(uri); err != nil {
					return err
				}
			}
			if bucket == "" || key == "" {
				return fmt.Errorf("an s3:// URI is required (or set EDGEFACE_S3_BUCKET and pass a key)")
			}

			ctx := context.Background()
			client, err := storage.New(ctx, bucket, cfg.S3Region)
			if err != nil {
				return fmt.Errorf("creating S3 client: %w", err)
			}
			if err := client.DownloadFile(ctx, key, dest); err != nil {
				if storage.IsNotFound(err) {
					return fmt.Errorf("checkpoint s3://%s/%s does not exist", bucket, key)
				}
				return fmt.Errorf("downloading checkpoint: %w", err)
			}
			sugar.Infow("checkpoint downloaded", "bucket", bucket, "key", key, "path", dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&uri, "uri", "", "s3://bucket/key of the checkpoint")
	cmd.Flags().StringVar(&dest, "dest", cfg.CheckpointPath, "local destination path")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("edgeface %s\n", version)
		},
	}
}
