// File: cmd/open.go
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/api/schemas"
	"github.com/xkilldash9x/answerbook/internal/answer"
	"github.com/xkilldash9x/answerbook/internal/observability"
)

// newOpenCmd creates the command that opens the book once.
func newOpenCmd() *cobra.Command {
	var (
		modeFlag string
		outPath  string
	)

	openCmd := &cobra.Command{
		Use:     "open",
		Aliases: []string{"翻开答案之书"},
		Short:   "Open the book of answers and print the answer",
		Long: `Open launches the browser, opens the book of answers once and prints the answer.

Text modes print to stdout. Image mode writes the screenshot to --out, which
defaults to answer.jpg or answer.png in the current directory; "-" writes the
image to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := configFrom(cmd)
			logger := observability.GetLogger()

			app := newComponents(cfg, logger)
			mode := app.Service.DefaultMode()
			if modeFlag != "" {
				mode, _ = answer.ParseMode(modeFlag)
			}

			// Keep stdout clean when the image itself goes there.
			greetingOut := cmd.OutOrStdout()
			if mode.IsImage() && outPath == "-" {
				greetingOut = cmd.ErrOrStderr()
			}
			if greeting, ok := app.Service.Greeting(); ok && mode.Valid() {
				fmt.Fprintln(greetingOut, greeting)
			}

			if mode.Valid() {
				if err := app.Manager.Start(ctx); err != nil {
					return err
				}
				defer app.Shutdown(logger)
			}

			payload, err := app.Service.Answer(ctx, mode)
			if err != nil {
				return fmt.Errorf("failed to open the answer book: %w", err)
			}
			return writePayload(cmd.OutOrStdout(), payload, outPath, logger)
		},
	}

	openCmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "presentation mode or its Chinese name (default from answer.mode)")
	openCmd.Flags().StringVarP(&outPath, "out", "o", "", `image destination; "-" for stdout`)
	return openCmd
}

// imageExtension picks the file extension for a MIME type.
func imageExtension(mimeType string) string {
	if mimeType == schemas.ImageFormatJPEG.MIMEType() {
		return ".jpg"
	}
	return ".png"
}

func writePayload(stdout io.Writer, payload schemas.Payload, outPath string, logger *zap.Logger) error {
	if len(payload.Image) == 0 {
		_, err := fmt.Fprintln(stdout, payload.Text)
		return err
	}

	if outPath == "-" {
		_, err := stdout.Write(payload.Image)
		return err
	}
	if outPath == "" {
		outPath = "answer" + imageExtension(payload.MIMEType)
	}
	path, err := homedir.Expand(outPath)
	if err != nil {
		return fmt.Errorf("invalid output path %q: %w", outPath, err)
	}
	if err := os.WriteFile(path, payload.Image, 0o644); err != nil {
		return fmt.Errorf("failed to write answer image: %w", err)
	}
	logger.Info("Answer image written",
		zap.String("path", path),
		zap.String("mime_type", payload.MIMEType),
		zap.Int("bytes", len(payload.Image)))
	_, err = fmt.Fprintln(stdout, path)
	return err
}
