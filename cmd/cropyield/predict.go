package main

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cropyield/inference"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
)

func (c *cli) newPredictCommand() *cobra.Command {
	var input, output, modelDir string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Append Predicted_Yield to every row of a CSV file",
		Args:  cobra.NoArgs,
		Example: `  cropyield predict --input rows.csv --output predictions.csv
  cat rows.csv | cropyield predict > predictions.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelDir == "" {
				modelDir = c.cfg.FinalModelDir
			}
			return c.predict(cmd, modelDir, input, output)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "Input CSV file, - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output CSV file, - for stdout")
	cmd.Flags().StringVar(&modelDir, "model-dir", "", "Directory holding model.json (defaults to final_model_dir)")
	return cmd
}

func (c *cli) predict(cmd *cobra.Command, modelDir, input, output string) error {
	start := time.Now()
	p, err := inference.Load(modelDir)
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return errors.Wrapf(err, "open input %s", input)
		}
		defer f.Close()
		r = f
	}

	var w io.Writer = cmd.OutOrStdout()
	var out *os.File
	if output != "-" {
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "create output directory %s", dir)
			}
		}
		out, err = os.Create(output)
		if err != nil {
			return errors.Wrapf(err, "create output %s", output)
		}
		defer out.Close()
		w = out
	}

	bw := bufio.NewWriter(w)
	if err := p.PredictCSV(r, bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "write predictions")
	}
	if out != nil {
		if err := out.Close(); err != nil {
			return errors.Wrapf(err, "close output %s", output)
		}
	}

	c.logger.Info("predictions written",
		log.ModelNameKey, p.ModelName(),
		log.ArtifactPathKey, output,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}
