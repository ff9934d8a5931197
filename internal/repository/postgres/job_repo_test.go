package postgres

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"adekit/internal/domain"
)

func TestWithJSONDefaults(t *testing.T) {
	job := &domain.Job{Schema: json.RawMessage(`{"type":"object"}`)}
	cp := withJSONDefaults(job)

	assert.JSONEq(t, `{"type":"object"}`, string(cp.Schema))
	assert.Equal(t, "null", string(cp.ParseResult))
	assert.Equal(t, "null", string(cp.Extraction))
	assert.Equal(t, "null", string(cp.Warnings))
	assert.Nil(t, job.ParseResult, "original job is not modified")
}
