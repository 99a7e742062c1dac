package ics

import (
	"context"

	"horizoncal/internal/bridge"
	appLog "horizoncal/internal/log"
)

// ImportReport summarises a one-shot import.
type ImportReport struct {
	Created []string
	Failed  map[string]error // keyed by UID
}

// Import parses body and saves every usable VEVENT as a new event note.
// Events that clash with an existing title on the same day fail
// individually; the rest still go in.
func Import(ctx context.Context, b *bridge.Bridge, body []byte) (ImportReport, error) {
	report := ImportReport{Failed: map[string]error{}}
	parsed, err := ParseICS(body)
	if err != nil {
		return report, err
	}
	for _, p := range parsed {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := b.Save(ctx, p.Event)
		if !out.OK() {
			appLog.Error("ics import: event not saved", out.Failed, "uid", p.UID)
			report.Failed[p.UID] = out.Failed
			continue
		}
		if out.Warning != nil {
			appLog.Warn("ics import: event saved in place", "uid", p.UID, "path", out.ID)
		}
		report.Created = append(report.Created, out.ID)
	}
	return report, nil
}
