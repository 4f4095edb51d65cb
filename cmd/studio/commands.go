package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"visionary-studio/internal/edit"
	"visionary-studio/internal/photo"
	"visionary-studio/internal/session"
	"visionary-studio/internal/studio"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <photo>",
		Short: "Critique a photo like a professional photographer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readPhoto(args[0])
			if err != nil {
				return err
			}
			svc, err := opts.service(cmd)
			if err != nil {
				return err
			}

			id := svc.Sessions().Create().ID
			st, err := svc.Upload(cmd.Context(), id, img)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st.Analysis)
			}
			_, err = fmt.Fprintln(out, renderAnalysis(args[0], *st.Analysis))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw analysis as JSON")
	return cmd
}

func newEnhanceCmd(opts *rootOptions) *cobra.Command {
	var (
		output      string
		force       bool
		skipAnalyze bool
		flags       *editFlags
	)

	cmd := &cobra.Command{
		Use:   "enhance <photo>",
		Short: "Retouch a photo with the given panel settings",
		Long: `Retouch a photo. The photo is analyzed first so the edit can address the
flaws the critique found, unless --skip-analysis is set.

Examples:
  studio enhance portrait.jpg --preset studio_portrait
  studio enhance street.jpg --tone 30 --zoom -20 --aspect-ratio 16:9 -o street-wide.png
  studio enhance beach.jpg -p "remove the people in the background"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service(cmd)
			if err != nil {
				return err
			}
			req, err := flags.request(cmd, svc.Presets())
			if err != nil {
				return err
			}
			path, err := enhanceFile(cmd, svc, args[0], output, "", force, !skipAnalyze, req)
			fmt.Fprintln(cmd.OutOrStdout(), renderResult(args[0], path, err))
			return err
		},
	}
	flags = addEditFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: <photo>-edited.<ext>)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite the output file if it exists")
	cmd.Flags().BoolVar(&skipAnalyze, "skip-analysis", false, "Do not analyze the photo before editing")
	return cmd
}

func newPromptCmd(opts *rootOptions) *cobra.Command {
	var (
		analysisFile string
		flags        *editFlags
	)

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the instruction that enhance would send",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := opts.presets()
			if err != nil {
				return err
			}
			req, err := flags.request(cmd, presets)
			if err != nil {
				return err
			}
			if err := req.Params.Validate(); err != nil {
				return err
			}

			var analysis *photo.Analysis
			if analysisFile != "" {
				a, err := readAnalysis(analysisFile)
				if err != nil {
					return err
				}
				analysis = &a
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), edit.Compose(req.Params.Normalize(), analysis, req.Prompt))
			return err
		},
	}
	flags = addEditFlags(cmd)
	cmd.Flags().StringVar(&analysisFile, "analysis", "", "JSON file written by \"studio analyze --json\" whose suggestions are included")
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir      string
		concurrency int
		force       bool
		skipAnalyze bool
		flags       *editFlags
	)

	cmd := &cobra.Command{
		Use:   "batch <photo>...",
		Short: "Retouch many photos with the same settings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service(cmd)
			if err != nil {
				return err
			}
			req, err := flags.request(cmd, svc.Presets())
			if err != nil {
				return err
			}
			if err := req.Params.Validate(); err != nil {
				return err
			}

			var (
				mu     sync.Mutex
				failed int
			)
			out := cmd.OutOrStdout()

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(concurrency, 1))
			for _, input := range args {
				g.Go(func() error {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					path, err := enhanceFile(cmd, svc, input, "", outDir, force, !skipAnalyze, req)

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failed++
					}
					fmt.Fprintln(out, renderResult(input, path, err))
					// One bad photo should not stop the rest of the batch.
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Fprintln(out, renderSummary(len(args)-failed, failed))
			if failed > 0 {
				return fmt.Errorf("%d of %d photos failed", failed, len(args))
			}
			return nil
		},
	}
	flags = addEditFlags(cmd)
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory for results (default: next to each photo)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "Photos processed at the same time")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing output files")
	cmd.Flags().BoolVar(&skipAnalyze, "skip-analysis", false, "Do not analyze photos before editing")
	return cmd
}

func newPresetsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List edit presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := opts.presets()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderPresets(presets.List()))
			return err
		},
	}
}

// enhanceFile runs one photo through its own session and writes the result.
func enhanceFile(cmd *cobra.Command, svc *studio.Service, input, output, dir string, force, analyze bool, req studio.EnhanceRequest) (string, error) {
	img, err := readPhoto(input)
	if err != nil {
		return "", err
	}

	id := svc.Sessions().Create().ID
	defer svc.Sessions().Delete(id)

	if analyze {
		// A failed critique still leaves the photo loaded; the edit goes ahead without it.
		if _, err := svc.Upload(cmd.Context(), id, img); err != nil && cmd.Context().Err() != nil {
			return "", err
		}
	} else {
		if _, err := svc.Sessions().Update(id, func(st *session.State) error {
			st.Original = &img
			return nil
		}); err != nil {
			return "", err
		}
	}

	st, err := svc.Enhance(cmd.Context(), id, req)
	if err != nil {
		return "", err
	}

	path := outputPath(input, output, dir, *st.Edited)
	if err := writePhoto(path, *st.Edited, force); err != nil {
		return "", err
	}
	return path, nil
}

func readAnalysis(path string) (photo.Analysis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return photo.Analysis{}, err
	}
	var a photo.Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return photo.Analysis{}, fmt.Errorf("decode analysis %s: %w", path, err)
	}
	return a, nil
}
