package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alivesay/squire/internal/notify"
)

// Subject is the mail subject for a branch's lists
func Subject(branch, timestamp string) string {
	return fmt.Sprintf("%s Paging Lists for %s", branch, timestamp)
}

type attachmentFile struct {
	path        string
	contentType string
}

func (p *Publisher) mail(ctx context.Context, job Job, titleHTML, itemHTML string) error {
	branch := job.Branch()
	to, ok := p.Recipients[branch]
	if !ok || len(to) == 0 {
		slog.Debug("No recipients for branch", "branch", branch)
		return nil
	}

	branchURL := fmt.Sprintf("%s/%s/index.html", strings.TrimRight(p.ListsURL, "/"), job.Basename)

	msg := notify.Message{
		From:    p.From,
		To:      to,
		Subject: Subject(branch, job.Timestamp),
		Text:    p.textBody(branch, branchURL),
		HTML:    p.htmlBody(branch, branchURL),
	}

	files := []attachmentFile{
		{job.TitleCSV, "text/csv"},
		{titleHTML, "application/octet-stream"},
	}
	if job.HasItemList {
		files = append(files,
			attachmentFile{job.ItemCSV, "text/csv"},
			attachmentFile{itemHTML, "application/octet-stream"},
		)
	}

	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			slog.Warn("Skipping attachment", "file", f.path, "error", err)
			continue
		}
		msg.Attachments = append(msg.Attachments, notify.Attachment{
			Filename:    filepath.Base(f.path),
			ContentType: f.contentType,
			Data:        data,
		})
	}

	if err := p.Mailer.Send(ctx, msg); err != nil {
		return err
	}
	slog.Info("Paging lists emailed", "branch", branch, "to", strings.Join(to, ", "))
	return nil
}

func (p *Publisher) textBody(branch, url string) string {
	return fmt.Sprintf("\n Please visit %s to access the %s Library paging lists.\n\n"+
		"Spreadsheet versions of your paging lists are also attached to this email.\n\n"+
		"If there is a problem with your paging lists, please contact the Help Desk at %s or %s.",
		url, branch, p.HelpDeskEmail, p.HelpDeskPhone)
}

func (p *Publisher) htmlBody(branch, url string) string {
	return fmt.Sprintf(`<html>
<head></head>
<body>
<p>Please visit <a href='%s'>here</a> to access the %s Library paging lists.</p>
<p>Spreadsheet versions of your paging lists are also attached to this email.</p>
<p>If there is a problem with your paging lists, please contact the Help Desk at <a href='mailto:%s'>%s</a> or %s.</p>
</body>
</html>
`, url, branch, p.HelpDeskEmail, p.HelpDeskEmail, p.HelpDeskPhone)
}
