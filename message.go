package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lithammer/dedent"
	"github.com/twistyyb/insurefire/internal/inventory"
	"github.com/twistyyb/insurefire/internal/job"
	"github.com/twistyyb/insurefire/internal/voice"
)

func formatText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

const (
	noResultsText   = "No inventory items found"
	noJobText       = "No processed video found. Submit one with: insurefire submit <video>"
	jobPendingText  = "Job %s is %s, results are not available yet"
	jobFinishedText = `
		Job %s complete.
		Browse the detected items with: insurefire results %s`

	inventorySummaryText = `
		Inventory for job %s
		Items: %d
		Total estimated value: %s
		`

	itemText = `
		%s
		  class: %s  confidence: %d%%  price: %s`

	talkIntroText = `
		Talking about %s detected items worth %s in total.
		Each audio file is sent as one question.`
)

func formatSnapshot(s job.Snapshot) string {
	switch s.State {
	case job.StateCreating:
		return "Creating processing job..."
	case job.StateUploading:
		if s.Progress >= job.ProgressUploaded {
			return fmt.Sprintf("Uploaded %s (%d%%)", s.FileName, s.Progress)
		}
		return fmt.Sprintf("Uploading %s (%d%%)", s.FileName, s.Progress)
	case job.StateTriggering:
		return "Starting video processing..."
	case job.StateProcessing:
		return fmt.Sprintf("Processing video for job %s...", s.JobID)
	case job.StateComplete:
		return "Processing complete (100%)"
	}
	if s.State.Terminal() && s.JobID != "" {
		return fmt.Sprintf("Job %s failed at %d%%", s.JobID, s.Progress)
	}
	return ""
}

func formatInventory(jobID string, rs inventory.ResultSet) string {
	var b strings.Builder
	b.WriteString(formatText(inventorySummaryText, jobID, rs.ItemCount(), inventory.FormatPrice(rs.TotalValue())))
	for _, key := range rs.Keys() {
		item := rs[key]
		b.WriteString("\n")
		b.WriteString(formatText(itemText, item.DisplayName(), item.Class, item.ConfidencePercent(), item.PriceLabel()))
	}
	return b.String()
}

func formatTurn(t voice.Turn) string {
	speaker := "You"
	if t.Role == voice.RoleAssistant {
		speaker = "Embers"
	}
	return fmt.Sprintf("%s: %s", speaker, t.Content)
}

func formatTalkIntro(rs inventory.ResultSet) string {
	return formatText(talkIntroText, humanize.Comma(int64(rs.ItemCount())), inventory.FormatPrice(rs.TotalValue()))
}
