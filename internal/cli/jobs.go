package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docgen/internal/models"
)

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect generation jobs",
	}
	cmd.AddCommand(newJobsShowCmd(opts))
	cmd.AddCommand(newJobsWaitCmd(opts))
	cmd.AddCommand(newJobsExportCmd(opts))
	return cmd
}

func newJobsShowCmd(opts *rootOptions) *cobra.Command {
	var (
		raw   bool
		style string
		width int
	)
	cmd := &cobra.Command{
		Use:   "show [job-id]",
		Short: "Show a job and render its document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			s, err := c.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd, s)
			if s.Status != models.JobStatusCompleted {
				return nil
			}

			content, err := c.Result(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Println()
			if raw {
				cmd.Println(content)
				return nil
			}
			out, err := renderMarkdown(content, style, width)
			if err != nil {
				return err
			}
			cmd.Print(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal styling")
	cmd.Flags().StringVar(&style, "style", envOr("GLAMOUR_STYLE", "auto"), "glamour style (auto, dark, light, notty)")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	return cmd
}

func renderMarkdown(content, style string, width int) (string, error) {
	styleOpt := glamour.WithStandardStyle(style)
	if style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

func printStatus(cmd *cobra.Command, s *JobStatus) {
	cmd.Printf("Job:      %s\n", s.ID)
	cmd.Printf("Status:   %s\n", s.Status)
	if s.Category != "" {
		cmd.Printf("Category: %s\n", s.Category)
	}
	if len(s.MissingRequired) > 0 {
		cmd.Printf("Missing:  %v\n", s.MissingRequired)
	}
	if s.Error != "" {
		cmd.Printf("Error:    %s\n", s.Error)
	}
	if u := s.Usage; u != nil {
		cmd.Printf("Model:    %s/%s (%d in, %d out, $%.4f)\n", u.Provider, u.Model, u.InputTokens, u.OutputTokens, u.CostUSD)
	}
}

// Backoff between status polls.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) next(d time.Duration) time.Duration {
	if d == 0 {
		return b.Initial
	}
	return min(d*2, b.Max)
}

// WaitForJob polls until the job reaches a terminal state or ctx ends.
func WaitForJob(ctx context.Context, c *Client, id string, b Backoff) (*JobStatus, error) {
	var delay time.Duration
	for {
		s, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.Status.Terminal() {
			return s, nil
		}

		delay = b.next(delay)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return s, fmt.Errorf("job %s still %s: %w", id, s.Status, ctx.Err())
		case <-t.C:
		}
	}
}

func newJobsWaitCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout time.Duration
		backoff = Backoff{Initial: 500 * time.Millisecond, Max: 5 * time.Second}
	)
	cmd := &cobra.Command{
		Use:   "wait [job-id]",
		Short: "Wait until a job completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			s, err := WaitForJob(ctx, opts.client(), args[0], backoff)
			if err != nil {
				return err
			}
			printStatus(cmd, s)
			if s.Status == models.JobStatusFailed {
				return errors.New("job failed: " + s.Error)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	cmd.Flags().DurationVar(&backoff.Initial, "interval", backoff.Initial, "first poll interval, doubled up to --max-interval")
	cmd.Flags().DurationVar(&backoff.Max, "max-interval", backoff.Max, "longest poll interval")
	return cmd
}

func newJobsExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export [job-id]",
		Short: "Download a completed job as a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, data, err := opts.client().Export(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = filepath.Base(name)
			} else if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, filepath.Base(name))
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			cmd.Printf("wrote %s (%d bytes)\n", path, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "F", "docx", "export format (docx, pdf, md, html)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file or directory (defaults to the server's file name)")
	return cmd
}
