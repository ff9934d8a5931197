package s3_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	s3store "adekit/internal/storage/s3"
)

func TestDocumentKey(t *testing.T) {
	tenant := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	job := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	prefix := "tenants/11111111-1111-1111-1111-111111111111/jobs/22222222-2222-2222-2222-222222222222/"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "invoice.pdf", prefix + "invoice.pdf"},
		{"unix path", "../../etc/passwd", prefix + "passwd"},
		{"windows path", `C:\Users\me\scan.png`, prefix + "scan.png"},
		{"empty", "", prefix + "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s3store.DocumentKey(tenant, job, tt.in))
		})
	}
}
