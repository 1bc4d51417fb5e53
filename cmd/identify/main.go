// Command identify submits one image to a prediction endpoint and prints
// the identified plant.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Brownie44l1/plant-identifier/internal/client"
	"github.com/Brownie44l1/plant-identifier/internal/upload"
	"github.com/spf13/cobra"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	Endpoint string
	Timeout  time.Duration
}

func newCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "identify IMAGE",
		Short: "Identify the medicinal plant in a JPEG or PNG image",
		Example: `  identify leaf.jpg
  identify --endpoint http://plants.internal:8080 leaf.png`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := identify(cmd.Context(), cmd.OutOrStdout(), opts, args[0])
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", message(err))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "http://localhost:8080", "base URL of the prediction server")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	return cmd
}

func identify(ctx context.Context, out io.Writer, opts *options, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	if _, err := upload.Accept(upload.File{Name: name, Data: data}); err != nil {
		return errors.New(upload.RejectionNotice)
	}

	c := client.New(opts.Endpoint, client.WithTimeout(opts.Timeout))
	res, err := c.Predict(ctx, name, bytes.NewReader(data))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Plant: %s\n", res.Prediction)
	fmt.Fprintf(out, "Confidence: %s\n", upload.FormatConfidence(res.Confidence))
	return nil
}

// message prefers the endpoint's display text over the wrapped cause.
func message(err error) string {
	var perr *client.Error
	if errors.As(err, &perr) {
		return client.Message(perr)
	}
	return err.Error()
}
