package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podcastgen/internal/aggregator"
	"podcastgen/internal/app"
	"podcastgen/internal/dataset"
	"podcastgen/internal/processor"
	"podcastgen/internal/registry"
	"podcastgen/internal/storage"
	"podcastgen/internal/types"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an mp3 or wav recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				asset, err := stageAudio(args[0], a.Config.Pipeline.WorkDir)
				if err != nil {
					return err
				}
				res := a.Processor.Transcribe(cmd.Context(), asset)
				return printResult(cmd.OutOrStdout(), res, jsonOut)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func newSpeakCommand(ctx *commandContext) *cobra.Command {
	var (
		voice   string
		file    string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize a transcript into a podcast",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args, file)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res := a.Processor.Text(cmd.Context(), text, types.VoiceProfile{ID: voice})
				return printResult(cmd.OutOrStdout(), res, jsonOut)
			})
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID (defaults to ELEVENLABS_VOICE_ID)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the transcript from a file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func newConversationCommand(ctx *commandContext) *cobra.Command {
	var (
		voice1, voice2 string
		file           string
		jsonOut        bool
	)
	cmd := &cobra.Command{
		Use:   "conversation [script]",
		Short: "Render a two-host conversation script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readInput(args, file)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res := a.Processor.Conversation(cmd.Context(), script,
					types.VoiceProfile{ID: voice1}, types.VoiceProfile{ID: voice2})
				return printResult(cmd.OutOrStdout(), res, jsonOut)
			})
		},
	}
	cmd.Flags().StringVar(&voice1, "voice1", "", "Voice ID for Host 1")
	cmd.Flags().StringVar(&voice2, "voice2", "", "Voice ID for Host 2")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the script from a file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func newPodcastCommand(ctx *commandContext) *cobra.Command {
	var (
		voice   string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "podcast <audio-file>",
		Short: "Transcribe a recording and re-voice it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				asset, err := stageAudio(args[0], a.Config.Pipeline.WorkDir)
				if err != nil {
					return err
				}
				res := a.Processor.Audio(cmd.Context(), asset, types.VoiceProfile{ID: voice})
				return printResult(cmd.OutOrStdout(), res, jsonOut)
			})
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID (defaults to ELEVENLABS_VOICE_ID)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		report  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "batch <manifest.xlsx>",
		Short: "Generate one podcast per manifest row and write a report workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				items, err := dataset.LoadBatch(args[0], ctx.log)
				if err != nil {
					return err
				}
				n := workers
				if n <= 0 {
					n = a.Config.Pipeline.BatchWorkers
				}
				outcomes := a.Processor.Batch(cmd.Context(), items, n)
				sum := aggregator.Summarize(outcomes)
				if report != "" {
					if err := dataset.WriteReport(report, outcomes, sum); err != nil {
						return err
					}
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderOutcomes(outcomes))
				fmt.Fprintf(out, "%d/%d succeeded (%.0f%%)\n", sum.Succeeded, sum.Total, sum.SuccessRate*100)
				if report != "" {
					fmt.Fprintf(out, "Report written to %s\n", report)
				}
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&report, "report", "o", "batch-report.xlsx", "Report workbook path (empty to skip)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Rows processed concurrently (defaults to pipeline.batch_workers)")
	return cmd
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent workflow runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuns(cmd.Context(), func(reg *registry.Registry, _ storage.ArtifactStore) error {
				runs, err := reg.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					dur := ""
					if !r.FinishedAt.IsZero() {
						dur = r.Duration().Round(time.Millisecond).String()
					}
					rows = append(rows, []string{
						r.ID,
						string(r.Workflow),
						string(r.State),
						string(r.ErrorKind),
						r.StartedAt.Local().Format(time.DateTime),
						dur,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Workflow", "State", "Error", "Started", "Duration"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fetch <run-id>",
		Short: "Copy a run's podcast out of the artifact store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuns(cmd.Context(), func(reg *registry.Registry, store storage.ArtifactStore) error {
				artifact, err := runArtifact(cmd.Context(), reg, args[0])
				if err != nil {
					return err
				}
				dst := output
				if dst == "" {
					dst = artifact.Filename
				}
				n, err := copyArtifact(cmd.Context(), store, artifact.Filename, dst)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", dst, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to the artifact name)")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <run-id>...",
		Short: "Delete finished runs and their podcasts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuns(cmd.Context(), func(reg *registry.Registry, store storage.ArtifactStore) error {
				for _, id := range args {
					run, err := reg.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					if run.ArtifactID != "" {
						artifact, err := reg.Artifact(cmd.Context(), run.ArtifactID)
						if err == nil {
							if err := store.Delete(cmd.Context(), artifact.Filename); err != nil {
								return fmt.Errorf("delete %s: %w", artifact.Filename, err)
							}
						} else if !errors.Is(err, registry.ErrArtifactNotFound) {
							return err
						}
					}
					if err := reg.Delete(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				}
				return nil
			})
		},
	}
}

func runArtifact(ctx context.Context, reg *registry.Registry, id string) (types.PodcastArtifact, error) {
	run, err := reg.Get(ctx, id)
	if err != nil {
		return types.PodcastArtifact{}, err
	}
	if run.ArtifactID == "" {
		return types.PodcastArtifact{}, fmt.Errorf("run %s has no podcast (state %s)", id, run.State)
	}
	return reg.Artifact(ctx, run.ArtifactID)
}

func copyArtifact(ctx context.Context, store storage.ArtifactStore, name, dst string) (int64, error) {
	src, err := store.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
	}
	return n, err
}

// readInput returns the positional argument, the named file, or stdin when
// the argument is "-".
func readInput(args []string, file string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", errors.New("pass either text or --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), err
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	case len(args) == 1:
		return args[0], nil
	}
	return "", errors.New("no input given")
}

// printResult writes res and turns a failed result into an error so the
// process exits non-zero.
func printResult(w io.Writer, res processor.Result, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		rows := [][]string{{"Success", strconv.FormatBool(res.Success)}}
		add := func(k, v string) {
			if v != "" {
				rows = append(rows, []string{k, v})
			}
		}
		add("Run", res.RunID)
		add("Audio", res.Audio)
		add("Transcript", truncate(res.Transcript, 120))
		add("Error", string(res.Kind))
		add("Message", res.Message)
		rows = append(rows, []string{"Duration", (time.Duration(res.DurationMs) * time.Millisecond).String()})
		fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, nil))
	}
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Kind, res.Message)
	}
	return nil
}

func renderOutcomes(outcomes []types.BatchOutcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		status := "ok"
		detail := o.Audio
		if !o.Success {
			status = string(o.Kind)
			detail = o.Message
		}
		rows = append(rows, []string{
			strconv.Itoa(o.Item.Row),
			o.Item.ID,
			o.Workflow,
			status,
			detail,
			strconv.FormatInt(o.DurationMs, 10),
		})
	}
	return renderTable(
		[]string{"Row", "ID", "Workflow", "Status", "Audio / Message", "ms"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
