package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"podcastgen/internal/logger"
	"podcastgen/internal/types"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	}
	return res, err
}

// Concatenator merges ordered audio segments into one file with ffmpeg's
// concat demuxer. Stream copy is used, so all segments must share codec
// parameters, which holds for output of a single TTS voice model.
type Concatenator struct {
	ffmpegPath string
	tempDir    string
	runner     commandRunner
	log        *logrus.Entry
}

func NewConcatenator(ffmpegPath, tempDir string, log *logrus.Entry) *Concatenator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Concatenator{
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
		runner:     execRunner{},
		log:        logger.Component(log, "audio"),
	}
}

// Concatenate returns the merged audio of segments, which must be in turn
// order. The caller keeps ownership of the segment files.
func (c *Concatenator) Concatenate(ctx context.Context, segments []types.AudioSegment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, &types.Error{Kind: types.KindConcatenationFailed, Op: "audio.concatenate", Message: "no segments to merge"}
	}
	for i := 1; i < len(segments); i++ {
		if segments[i].TurnIndex <= segments[i-1].TurnIndex {
			return nil, &types.Error{
				Kind:    types.KindConcatenationFailed,
				Op:      "audio.concatenate",
				Message: fmt.Sprintf("segment %d (turn %d) is out of order", i, segments[i].TurnIndex),
			}
		}
	}
	if len(segments) == 1 {
		data, err := os.ReadFile(segments[0].Path)
		if err != nil {
			return nil, &types.Error{Kind: types.KindConcatenationFailed, Op: "audio.concatenate", Err: err}
		}
		return data, nil
	}

	dir, err := os.MkdirTemp(c.tempDir, "concat-*")
	if err != nil {
		return nil, &types.Error{Kind: types.KindConcatenationFailed, Op: "audio.concatenate", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			c.log.WithError(err).WithField("dir", dir).Warn("failed to remove concat work dir")
		}
	}()

	listPath := filepath.Join(dir, "segments.txt")
	if err := os.WriteFile(listPath, []byte(concatList(segments)), 0o600); err != nil {
		return nil, &types.Error{Kind: types.KindConcatenationFailed, Op: "audio.concatenate", Err: err}
	}
	outPath := filepath.Join(dir, "merged"+types.ArtifactExt)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
	res, err := c.runner.Run(ctx, c.ffmpegPath, args...)
	if err != nil {
		c.log.WithFields(logrus.Fields{"exit_code": res.ExitCode, "stderr": strings.TrimSpace(res.Stderr)}).Error("ffmpeg concat failed")
		return nil, &types.Error{
			Kind:    types.KindConcatenationFailed,
			Op:      "audio.concatenate",
			Message: fmt.Sprintf("ffmpeg exit %d: %s", res.ExitCode, lastLine(res.Stderr)),
			Err:     err,
		}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &types.Error{Kind: types.KindConcatenationFailed, Op: "audio.concatenate", Message: "ffmpeg produced no output", Err: err}
	}
	c.log.WithFields(logrus.Fields{"segments": len(segments), "bytes": len(data)}).Info("segments merged")
	return data, nil
}

// concatList renders the concat demuxer input. Single quotes inside paths
// are closed, escaped and reopened.
func concatList(segments []types.AudioSegment) string {
	var sb strings.Builder
	for _, s := range segments {
		abs, err := filepath.Abs(s.Path)
		if err != nil {
			abs = s.Path
		}
		sb.WriteString("file '")
		sb.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		sb.WriteString("'\n")
	}
	return sb.String()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
