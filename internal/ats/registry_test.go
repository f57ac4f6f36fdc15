package ats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestIdentifyByURL(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())

	tests := []struct {
		url      string
		strategy string
	}{
		{"https://boards.greenhouse.io/acme/jobs/123", "greenhouse"},
		{"https://job-boards.greenhouse.io/acme/jobs/456", "greenhouse"},
		{"https://jobs.lever.co/acme/abc-def", "lever"},
		{"https://acme.wd5.myworkdayjobs.com/en-US/careers/job/123", "workday"},
		{"https://jobs.ashbyhq.com/acme/uuid", "ashby"},
		{"https://www.linkedin.com/jobs/view/12345", "linkedin"},
		{"https://careers.example.com/apply/engineer", "generic"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.strategy, r.Identify("", tt.url).Name(), "url %s", tt.url)
	}
}

func TestIdentifyByContent(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())

	html := `<html><head><script src="https://boards.greenhouse.io/embed/job_board/js"></script></head></html>`
	assert.Equal(t, "greenhouse", r.Identify(html, "https://careers.acme.com/jobs/1").Name())

	html = `<form><input name="_systemfield_email"></form>`
	assert.Equal(t, "ashby", r.Identify(html, "https://careers.acme.com/jobs/1").Name())

	assert.Equal(t, "generic", r.Identify("<html></html>", "https://careers.acme.com/jobs/1").Name())
}

func TestURLMatchWinsOverContent(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())

	// Lever URL with a stray greenhouse mention in the page
	html := `<p>also posted on boards.greenhouse.io</p>`
	assert.Equal(t, "lever", r.Identify(html, "https://jobs.lever.co/acme/role").Name())
}

func TestGetByName(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	assert.Equal(t, "workday", r.Get("workday").Name())
	assert.Equal(t, "generic", r.Get("unknown").Name())
}

func TestLoadOverrides(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())

	dir := t.TempDir()
	path := filepath.Join(dir, "selectors.yaml")
	content := `greenhouse:
  email:
    - input#candidate_email
unknown_platform:
  email:
    - input#nope
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, r.LoadOverrides(path))

	gh := r.Get("greenhouse").(*baseStrategy)
	assert.Equal(t, []string{"input#candidate_email"}, gh.selectors["email"])
}

func TestLoadOverridesMissingFileIsNoop(t *testing.T) {
	r := NewRegistry(arbor.NewLogger())
	assert.NoError(t, r.LoadOverrides("/nonexistent/selectors.yaml"))
	assert.NoError(t, r.LoadOverrides(""))
}
