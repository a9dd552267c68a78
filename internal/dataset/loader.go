package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"podcastgen/internal/types"
)

// columns holds detected header positions, -1 when absent.
type columns struct {
	id, transcript, conversation, voice, voice1, voice2 int
}

// detectColumns matches header names loosely: "Episode ID", "transcript",
// "Script / Conversation", "Voice 1" and so on.
func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1, -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		compact := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(l)
		isConversation := strings.Contains(l, "conversation") || strings.Contains(l, "dialog") ||
			(strings.Contains(l, "script") && !strings.Contains(l, "transcript"))
		switch {
		case isConversation:
			if c.conversation == -1 {
				c.conversation = i
			}
		case strings.Contains(l, "transcript") || strings.Contains(l, "text"):
			if c.transcript == -1 {
				c.transcript = i
			}
		case strings.Contains(compact, "voice1") || strings.Contains(compact, "host1"):
			c.voice1 = i
		case strings.Contains(compact, "voice2") || strings.Contains(compact, "host2"):
			c.voice2 = i
		case strings.Contains(l, "voice"):
			if c.voice == -1 {
				c.voice = i
			}
		case l == "id" || strings.HasSuffix(compact, "id") || strings.Contains(l, "name"):
			if c.id == -1 {
				c.id = i
			}
		}
	}
	return c
}

func cell(r []string, idx int) string {
	if idx >= 0 && idx < len(r) {
		return strings.TrimSpace(r[idx])
	}
	return ""
}

// LoadBatch reads the first sheet of an xlsx manifest. Rows with neither a
// transcript nor a conversation are skipped. Row numbers are 1-based sheet
// rows, so the first data row is 2.
func LoadBatch(path string, log *logrus.Entry) ([]types.BatchItem, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{"component": "dataset", "path": path})

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.transcript == -1 && cols.conversation == -1 {
		return nil, fmt.Errorf("no transcript or conversation column in header %q", rows[0])
	}
	log.WithFields(logrus.Fields{
		"transcript_col":   cols.transcript,
		"conversation_col": cols.conversation,
		"voice_col":        cols.voice,
	}).Debug("detected manifest columns")

	var out []types.BatchItem
	skipped := 0
	for i, r := range rows[1:] {
		item := types.BatchItem{
			Row:          i + 2,
			ID:           cell(r, cols.id),
			Transcript:   cell(r, cols.transcript),
			Conversation: cell(r, cols.conversation),
			Voice:        cell(r, cols.voice),
			Voice1:       cell(r, cols.voice1),
			Voice2:       cell(r, cols.voice2),
		}
		if item.Transcript == "" && item.Conversation == "" {
			skipped++
			continue
		}
		if item.ID == "" {
			item.ID = "row-" + strconv.Itoa(item.Row)
		}
		out = append(out, item)
	}
	log.WithFields(logrus.Fields{"items": len(out), "skipped": skipped}).Info("batch manifest loaded")
	return out, nil
}
