// Package notify renders job completion messages. Delivery lives in the
// ses and noop subpackages.
package notify

import (
	"fmt"
	"html"
	"strings"

	"adekit/internal/domain"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// JobURL returns the API location of a job.
func JobURL(baseURL string, job *domain.Job) string {
	return fmt.Sprintf("%s/api/v1/jobs/%s", strings.TrimRight(baseURL, "/"), job.ID)
}

// JobFinished renders the message sent when job reaches a terminal state.
func JobFinished(baseURL string, job *domain.Job) Message {
	link := JobURL(baseURL, job)

	var subject, summary string
	if job.Status == domain.JobStatusCompleted {
		subject = fmt.Sprintf("Document processed: %s", job.FileName)
		summary = fmt.Sprintf("%s was processed successfully (%d pages, %.2f credits).",
			job.FileName, job.PageCount, job.CreditUsage)
	} else {
		subject = fmt.Sprintf("Document processing failed: %s", job.FileName)
		summary = fmt.Sprintf("%s could not be processed after %d attempt(s): %s",
			job.FileName, job.Attempts, job.Error)
	}

	text := fmt.Sprintf("%s\n\nJob: %s\nResult: %s/result\n\nadekit", summary, job.ID, link)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">%s</h2>
  <p>%s</p>
  <p style="color: #666;">Job <code>%s</code></p>
  <p style="text-align: center; margin: 30px 0;">
    <a href="%s/result" style="background-color: #4F46E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">View result</a>
  </p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px;">adekit document gateway</p>
</body>
</html>`, html.EscapeString(subject), html.EscapeString(summary), job.ID, html.EscapeString(link))

	return Message{To: job.NotifyEmail, Subject: subject, Text: text, HTML: body}
}
