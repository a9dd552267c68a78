package audio

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podcastgen/internal/logger"
	"podcastgen/internal/types"
)

// fakeRunner simulates ffmpeg by appending the listed inputs into the output.
type fakeRunner struct {
	calls int
	fail  bool
	args  []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (commandResult, error) {
	f.calls++
	f.args = append([]string{}, args...)
	if f.fail {
		return commandResult{Stderr: "warning\nInvalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
	}
	list := argValue(args, "-i")
	lf, err := os.Open(list)
	if err != nil {
		return commandResult{}, err
	}
	defer lf.Close()

	var merged []byte
	sc := bufio.NewScanner(lf)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		path := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		path = strings.ReplaceAll(path, `'\''`, "'")
		b, err := os.ReadFile(path)
		if err != nil {
			return commandResult{}, err
		}
		merged = append(merged, b...)
	}
	return commandResult{}, os.WriteFile(args[len(args)-1], merged, 0o600)
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func writeSegments(t *testing.T, dir string, contents ...string) []types.AudioSegment {
	t.Helper()
	segs := make([]types.AudioSegment, len(contents))
	for i, c := range contents {
		p := filepath.Join(dir, "turn-"+string(rune('0'+i))+".mp3")
		if err := os.WriteFile(p, []byte(c), 0o600); err != nil {
			t.Fatal(err)
		}
		segs[i] = types.AudioSegment{TurnIndex: i, Path: p}
	}
	return segs
}

func newTestConcatenator(t *testing.T, r commandRunner) (*Concatenator, string) {
	t.Helper()
	tmp := t.TempDir()
	c := NewConcatenator("ffmpeg-test", tmp, logger.Discard())
	c.runner = r
	return c, tmp
}

func TestConcatenatePreservesOrder(t *testing.T) {
	r := &fakeRunner{}
	c, tmp := newTestConcatenator(t, r)
	segs := writeSegments(t, t.TempDir(), "AAA", "BBB", "CCC")

	out, err := c.Concatenate(context.Background(), segs)
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	if string(out) != "AAABBBCCC" {
		t.Fatalf("out = %q", out)
	}
	if argValue(r.args, "-f") != "concat" || argValue(r.args, "-c") != "copy" {
		t.Fatalf("unexpected args %v", r.args)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Fatalf("work dir not cleaned: %v", entries)
	}
	for _, s := range segs {
		if _, err := os.Stat(s.Path); err != nil {
			t.Fatalf("segment files belong to the caller: %v", err)
		}
	}
}

func TestConcatenateSingleSegmentSkipsFFmpeg(t *testing.T) {
	r := &fakeRunner{}
	c, _ := newTestConcatenator(t, r)
	out, err := c.Concatenate(context.Background(), writeSegments(t, t.TempDir(), "ONLY"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "ONLY" || r.calls != 0 {
		t.Fatalf("out=%q calls=%d", out, r.calls)
	}
}

func TestConcatenateEmpty(t *testing.T) {
	c, _ := newTestConcatenator(t, &fakeRunner{})
	_, err := c.Concatenate(context.Background(), nil)
	if !errors.Is(err, types.ErrConcatenationFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestConcatenateRejectsOutOfOrder(t *testing.T) {
	c, _ := newTestConcatenator(t, &fakeRunner{})
	segs := writeSegments(t, t.TempDir(), "A", "B")
	segs[0].TurnIndex, segs[1].TurnIndex = 1, 0
	_, err := c.Concatenate(context.Background(), segs)
	if !errors.Is(err, types.ErrConcatenationFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestConcatenateFFmpegFailure(t *testing.T) {
	c, tmp := newTestConcatenator(t, &fakeRunner{fail: true})
	_, err := c.Concatenate(context.Background(), writeSegments(t, t.TempDir(), "A", "B"))
	e, ok := types.AsError(err)
	if !ok || e.Kind != types.KindConcatenationFailed {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(e.Message, "Invalid data found") {
		t.Fatalf("message = %q", e.Message)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Fatalf("work dir not cleaned after failure: %v", entries)
	}
}

func TestConcatListEscapesQuotes(t *testing.T) {
	got := concatList([]types.AudioSegment{{Path: "/tmp/it's.mp3"}})
	if got != "file '/tmp/it'\\''s.mp3'\n" {
		t.Fatalf("list = %q", got)
	}
}
