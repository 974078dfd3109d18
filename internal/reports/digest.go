package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// DigestMailer delivers the rendered digest. Satisfied by *Mailer.
type DigestMailer interface {
	Send(ctx context.Context, subject, body string) error
}

// DigestArchiver keeps a copy of the scoreboard. Satisfied by *Archive.
type DigestArchiver interface {
	Store(ctx context.Context, objectName string, data []byte, contentType string) error
}

// Digest assembles and delivers the Monday-morning performance summary:
// the scoreboard and the stuck deals from the weekly report, emailed to
// the configured recipients and archived as CSV.
type Digest struct {
	svc     *Service
	mailer  DigestMailer
	archive DigestArchiver
}

func NewDigest(svc *Service, mailer DigestMailer, archive DigestArchiver) *Digest {
	return &Digest{svc: svc, mailer: mailer, archive: archive}
}

// RunWeeklyDigest builds the digest from current ledger and CRM state.
// The email and the archive copy are independent: one failing does not
// stop the other, and either failure fails the task so asynq retries it.
func (d *Digest) RunWeeklyDigest(ctx context.Context) error {
	board, err := d.svc.Scoreboard(ctx)
	if err != nil {
		return fmt.Errorf("build scoreboard: %w", err)
	}
	report, err := d.svc.WeeklyReport(ctx, 0)
	if err != nil {
		return fmt.Errorf("build weekly report: %w", err)
	}

	weekOf := d.svc.now().UTC().Format("2006-01-02")

	var archiveErr error
	if d.archive != nil {
		objectName := fmt.Sprintf("scoreboard-%s.csv", weekOf)
		archiveErr = d.archive.Store(ctx, objectName, scoreboardCSV(board), "text/csv")
	}

	var mailErr error
	if d.mailer != nil {
		subject := fmt.Sprintf("Sales scoreboard, week of %s", weekOf)
		mailErr = d.mailer.Send(ctx, subject, renderDigestBody(board, report))
	}

	if archiveErr != nil {
		return archiveErr
	}
	return mailErr
}

func scoreboardCSV(board []ScoreboardRow) []byte {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"user_id", "name", "total_points", "weekly_points", "weekly_minimum", "on_track", "quarter_points", "quarter_target", "rank"})
	for _, row := range board {
		_ = w.Write([]string{
			strconv.Itoa(row.UserID),
			row.Name,
			strconv.Itoa(row.TotalPoints),
			strconv.Itoa(row.WeeklyPoints),
			strconv.Itoa(row.WeeklyMinimum),
			strconv.FormatBool(row.OnTrack),
			strconv.Itoa(row.QuarterPoints),
			strconv.Itoa(row.QuarterTarget),
			row.CurrentRank,
		})
	}
	w.Flush()
	return []byte(buf.String())
}

func renderDigestBody(board []ScoreboardRow, report []WeeklyDealReportItem) string {
	var b strings.Builder

	b.WriteString("SCOREBOARD\n\n")
	if len(board) == 0 {
		b.WriteString("No scored activity yet.\n")
	}
	for i, row := range board {
		name := row.Name
		if name == "" {
			name = fmt.Sprintf("Rep %d", row.UserID)
		}
		status := "BEHIND"
		if row.OnTrack {
			status = "on track"
		}
		fmt.Fprintf(&b, "%d. %s: %d pts (week %d/%d, %s)", i+1, name, row.TotalPoints, row.WeeklyPoints, row.WeeklyMinimum, status)
		if row.CurrentRank != "" {
			fmt.Fprintf(&b, " [%s]", row.CurrentRank)
		}
		b.WriteString("\n")
	}

	var stuck []WeeklyDealReportItem
	for _, item := range report {
		if item.IsStuck {
			stuck = append(stuck, item)
		}
	}
	b.WriteString("\nSTUCK DEALS\n\n")
	if len(stuck) == 0 {
		b.WriteString("None. Pipeline is moving.\n")
	}
	for _, item := range stuck {
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", item.Title, item.OwnerName, item.StageName, item.StuckReason)
	}

	return b.String()
}
