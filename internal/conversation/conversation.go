// Package conversation splits multi-speaker scripts into ordered turns.
//
// A script is a sequence of "<Label>: body" blocks, e.g.
//
//	Host 1: Hello. Host 2: Hi there.
//
// Markers are matched case-insensitively and may sit anywhere in the text,
// not just at line starts. Anything shaped like a marker for the same speaker
// family ("Host 3:") but missing from the recognized set is rejected, as is
// text before the first marker or a marker with an empty body. A line that
// opens with some other short "Name:" label ("Guest:") is rejected too, so
// an unknown speaker is never voiced as the previous one.
package conversation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"podcastgen/internal/types"
)

// Segmenter recognizes a fixed set of speaker labels.
type Segmenter struct {
	labels map[string]string // normalized -> canonical
	marker *regexp.Regexp
}

// lineLabel matches a short "Name:" label opening a line. The colon must be
// followed by whitespace so times and URLs stay text.
var lineLabel = regexp.MustCompile(`(?m)^[ \t]*([A-Za-z][\w'-]*(?:[ \t]+[\w'-]+){0,3})[ \t]*:(?:[ \t]|$)`)

var defaultSegmenter = mustSegmenter(types.SpeakerHost1, types.SpeakerHost2)

func mustSegmenter(labels ...string) *Segmenter {
	s, err := NewSegmenter(labels...)
	if err != nil {
		panic(err)
	}
	return s
}

// NewSegmenter builds a segmenter for labels of the form "<Word> <N>".
func NewSegmenter(labels ...string) (*Segmenter, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("conversation: at least one speaker label is required")
	}
	s := &Segmenter{labels: make(map[string]string, len(labels))}
	prefixes := map[string]struct{}{}
	for _, l := range labels {
		canonical := strings.Join(strings.Fields(l), " ")
		prefix := strings.TrimRightFunc(canonical, unicode.IsDigit)
		prefix = strings.TrimSpace(prefix)
		if prefix == "" || prefix == canonical {
			return nil, fmt.Errorf("conversation: label %q must look like \"<Word> <N>\"", l)
		}
		s.labels[normalize(canonical)] = canonical
		prefixes[regexp.QuoteMeta(prefix)] = struct{}{}
	}
	alts := make([]string, 0, len(prefixes))
	for p := range prefixes {
		alts = append(alts, strings.ReplaceAll(p, " ", `\s+`))
	}
	s.marker = regexp.MustCompile(`(?i)\b((?:` + strings.Join(alts, "|") + `)\s*\d+)\s*:`)
	return s, nil
}

// Segment splits script using the default "Host 1"/"Host 2" labels.
func Segment(script string) ([]types.ConversationTurn, error) {
	return defaultSegmenter.Segment(script)
}

// Labels returns the recognized canonical labels, sorted.
func (s *Segmenter) Labels() []string {
	out := make([]string, 0, len(s.labels))
	for _, v := range s.labels {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Segment returns the turns of script in document order with bodies trimmed.
func (s *Segmenter) Segment(script string) ([]types.ConversationTurn, error) {
	if strings.TrimSpace(script) == "" {
		return nil, &types.Error{
			Kind:    types.KindInvalidInput,
			Op:      "conversation.segment",
			Message: "conversation is empty",
			Err:     types.ErrEmptyConversation,
		}
	}

	matches := s.marker.FindAllStringSubmatchIndex(script, -1)
	if len(matches) == 0 {
		return nil, types.InvalidInput("conversation.segment", "conversation has no speaker labels (expected %s)", s.expected())
	}
	if lead := strings.TrimSpace(script[:matches[0][2]]); lead != "" {
		return nil, types.InvalidInput("conversation.segment", "text before the first speaker label: %q", clip(lead))
	}

	if err := s.checkLineLabels(script, matches); err != nil {
		return nil, err
	}

	turns := make([]types.ConversationTurn, 0, len(matches))
	for i, m := range matches {
		raw := script[m[2]:m[3]]
		label, ok := s.labels[normalize(raw)]
		if !ok {
			return nil, types.InvalidInput("conversation.segment", "unrecognized speaker label %q (expected %s)", raw, s.expected())
		}
		end := len(script)
		if i+1 < len(matches) {
			end = matches[i+1][2]
		}
		body := strings.TrimSpace(script[m[1]:end])
		if body == "" {
			return nil, types.InvalidInput("conversation.segment", "turn %d (%s) has no text", i+1, label)
		}
		turns = append(turns, types.ConversationTurn{Index: i, Speaker: label, Text: body})
	}
	return turns, nil
}

// checkLineLabels rejects line-leading labels that are not speaker markers.
func (s *Segmenter) checkLineLabels(script string, matches [][]int) error {
	starts := make(map[int]struct{}, len(matches))
	for _, m := range matches {
		starts[m[2]] = struct{}{}
	}
	for _, l := range lineLabel.FindAllStringSubmatchIndex(script, -1) {
		if _, ok := starts[l[2]]; ok {
			continue
		}
		raw := script[l[2]:l[3]]
		return types.InvalidInput("conversation.segment", "unrecognized speaker label %q (expected %s)", raw, s.expected())
	}
	return nil
}

func (s *Segmenter) expected() string {
	labels := s.Labels()
	for i := range labels {
		labels[i] = fmt.Sprintf("%q", labels[i]+":")
	}
	return strings.Join(labels, " or ")
}

func normalize(label string) string {
	var b strings.Builder
	for _, r := range label {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func clip(s string) string {
	const max = 40
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
