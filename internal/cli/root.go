// Package cli implements the bikeshare command line: train a model, predict a
// single row, and list feature importances.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/bikeshare/config"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
)

type app struct {
	cfgPath string
	cfg     *config.Config
}

// NewRootCommand builds the bikeshare command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "bikeshare",
		Short:         "Train and serve the hourly bike rental demand model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			if err := log.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "config.yaml", "configuration file (yaml or json)")

	root.AddCommand(
		newTrainCommand(a),
		newPredictCommand(a),
		newImportanceCommand(a),
	)
	return root
}

// Execute runs the command line with args and logs a failure before
// returning it.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		log.GetLoggerWithName("cli").Error("Command failed", err)
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
