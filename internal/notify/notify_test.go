package notify_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"adekit/internal/domain"
	"adekit/internal/notify"
)

func TestJobFinished_Completed(t *testing.T) {
	job := &domain.Job{
		ID:          uuid.New(),
		FileName:    "invoice.pdf",
		Status:      domain.JobStatusCompleted,
		PageCount:   3,
		CreditUsage: 4.5,
		NotifyEmail: "ops@example.com",
	}
	msg := notify.JobFinished("http://localhost:8080/", job)

	assert.Equal(t, "ops@example.com", msg.To)
	assert.Equal(t, "Document processed: invoice.pdf", msg.Subject)
	assert.Contains(t, msg.Text, "3 pages, 4.50 credits")
	assert.Contains(t, msg.Text, "http://localhost:8080/api/v1/jobs/"+job.ID.String()+"/result")
	assert.Contains(t, msg.HTML, job.ID.String())
}

func TestJobFinished_FailedEscapesHTML(t *testing.T) {
	job := &domain.Job{
		ID:       uuid.New(),
		FileName: "<b>scan</b>.png",
		Status:   domain.JobStatusFailed,
		Attempts: 2,
		Error:    "parse failed",
	}
	msg := notify.JobFinished("https://ade.example.com", job)

	assert.Equal(t, "Document processing failed: <b>scan</b>.png", msg.Subject)
	assert.Contains(t, msg.Text, "after 2 attempt(s): parse failed")
	assert.Contains(t, msg.HTML, "&lt;b&gt;scan&lt;/b&gt;.png")
	assert.NotContains(t, msg.HTML, "<b>scan</b>")
}
