package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	contentreviver "github.com/yash21saraf/revival.ai/agents/content-reviver"
	"github.com/yash21saraf/revival.ai/internal/models"
	"github.com/yash21saraf/revival.ai/shared/credentials"
	"github.com/yash21saraf/revival.ai/shared/monitoring"
	"github.com/yash21saraf/revival.ai/shared/scheduler"
)

// interactiveKeys lets the CLI ask for a new key when the current one is
// rejected.
func interactiveKeys() credentials.Capability {
	return credentials.Available(credentials.NewFileKeyManager(cfg.AI.KeyFile))
}

func newReviver(cmd *cobra.Command, keys credentials.Capability) (*contentreviver.Reviver, error) {
	reviver := contentreviver.NewReviver(cfg, keys)
	if err := reviver.Initialize(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return reviver, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			ctx := cmd.Context()

			// The server has no terminal to prompt on.
			reviver, err := newReviver(cmd, credentials.Available(credentials.StaticKey(cfg.AI.GeminiAPIKey)))
			if err != nil {
				return err
			}
			defer reviver.Close()

			health := monitoring.NewHealthServer(reviver.Monitor(), cfg.Monitoring.HealthPort)
			health.Start(ctx)

			if jobs := reviver.MaintenanceJobs(); len(jobs) > 0 {
				s := scheduler.New(cfg.Schedule, reviver.Monitor(), jobs...)
				go func() {
					if err := s.Start(ctx); err != nil && ctx.Err() == nil {
						log.Error("scheduler failed", "err", err)
					}
				}()
			}

			return contentreviver.NewServer(reviver, &cfg.Server, health).ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var (
		sendEmail  bool
		asJSON     bool
		framePaths []string
	)

	cmd := &cobra.Command{
		Use:   "analyze <youtube-url>",
		Short: "Analyze a video and print its revival report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			frames := make([]models.Frame, 0, len(framePaths))
			for _, p := range framePaths {
				frame, err := readFrame(p)
				if err != nil {
					return err
				}
				frames = append(frames, frame)
			}

			reviver, err := newReviver(cmd, interactiveKeys())
			if err != nil {
				return err
			}
			defer reviver.Close()

			narrator := contentreviver.NewConsoleNarrator(os.Stderr)
			var report *models.Report
			err = reviver.RetryOnAuthError(ctx, notifyKeyRejected, func() error {
				defer narrator.Done()
				var err error
				report, err = reviver.Analyze(ctx, args[0], frames, narrator.Update)
				return err
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				plain := !term.IsTerminal(int(os.Stdout.Fd()))
				if err := contentreviver.RenderReport(os.Stdout, report, contentreviver.TerminalWidth(), plain); err != nil {
					return err
				}
			}

			if sendEmail {
				if err := reviver.EmailReport(report); err != nil {
					return fmt.Errorf("failed to email report: %w", err)
				}
				log.Info("report emailed", "to", cfg.Email.ToEmail)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sendEmail, "email", false, "Email the report (requires email settings)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringSliceVar(&framePaths, "frame", nil, "Extra context image (repeatable)")
	return cmd
}

func newOverlayCmd() *cobra.Command {
	var (
		instruction string
		reportID    string
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "overlay <image-file>",
		Short: "Generate a refreshed thumbnail from an existing image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			frame, err := readFrame(args[0])
			if err != nil {
				return err
			}

			reviver, err := newReviver(cmd, interactiveKeys())
			if err != nil {
				return err
			}
			defer reviver.Close()

			if instruction == "" && reportID != "" {
				if instruction, err = reviver.OverlayInstructionFor(ctx, reportID); err != nil {
					return fmt.Errorf("failed to load report %s: %w", reportID, err)
				}
			}

			var out *models.Frame
			err = reviver.RetryOnAuthError(ctx, notifyKeyRejected, func() error {
				var err error
				out, err = reviver.Overlay(ctx, frame, instruction)
				return err
			})
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = overlayOutputPath(args[0], out.MimeType)
			}
			if err := os.WriteFile(outPath, out.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Println(outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&instruction, "instruction", "", "Edit instruction for the image model")
	cmd.Flags().StringVar(&reportID, "report", "", "Derive the instruction from a stored report")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default <image>-revived.<ext>)")
	return cmd
}

func newReportsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reports [report-id]",
		Short: "List stored reports, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			reviver, err := newReviver(cmd, credentials.Unavailable())
			if err != nil {
				return err
			}
			defer reviver.Close()

			if len(args) == 1 {
				report, err := reviver.Report(ctx, args[0])
				if err != nil {
					return err
				}
				plain := !term.IsTerminal(int(os.Stdout.Fd()))
				return contentreviver.RenderReport(os.Stdout, report, contentreviver.TerminalWidth(), plain)
			}

			reports, err := reviver.Reports(ctx, limit)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Println("No reports stored")
				return nil
			}
			for _, r := range reports {
				title := models.DefaultVideoMetadata().Title
				if md := r.Strategy.OriginalVideoMetadata; md != nil {
					title = md.Title
				}
				fmt.Printf("%s  %s  %s\n    %s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), title, r.VideoURL)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports to list")
	return cmd
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Run the maintenance jobs once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reviver, err := newReviver(cmd, credentials.Unavailable())
			if err != nil {
				return err
			}
			defer reviver.Close()

			s := scheduler.New(cfg.Schedule, reviver.Monitor())
			for _, job := range reviver.MaintenanceJobs() {
				if err := s.RunOnce(cmd.Context(), job); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the Gemini API key",
	}

	keyCmd.AddCommand(&cobra.Command{
		Use:   "select",
		Short: "Enter and store a Gemini API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _ := interactiveKeys().Manager()
			return mgr.SelectKey(cmd.Context())
		},
	})

	return keyCmd
}

func notifyKeyRejected(error) {
	fmt.Fprintln(os.Stderr, "The Gemini API key was rejected. Select a different key to retry.")
}

func readFrame(path string) (models.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Frame{}, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return models.Frame{}, fmt.Errorf("%s is not an image (detected %s)", path, mimeType)
	}
	return models.Frame{MimeType: mimeType, Data: data}, nil
}

func overlayOutputPath(input, mimeType string) string {
	ext := ".png"
	switch mimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "-revived" + ext
}
