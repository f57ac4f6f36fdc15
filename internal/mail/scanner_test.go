package mail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/models"
)

func confirmationEmail(from, subject, body string) Email {
	return Email{From: from, Subject: subject, Body: body, Date: time.Now()}
}

func submittedAttempt(jobID, company string) models.Attempt {
	return models.Attempt{JobID: jobID, Company: company, Result: models.AttemptSuccess}
}

func TestMatchConfirmationsByCompany(t *testing.T) {
	emails := []Email{
		confirmationEmail("no-reply@acme.com", "Thank you for applying to Acme", "We have received your application."),
		confirmationEmail("newsletter@shop.com", "Weekly deals", "Buy more things."),
	}
	submitted := []models.Attempt{
		submittedAttempt("j1", "Acme"),
		submittedAttempt("j2", "Globex"),
	}

	confirmations := MatchConfirmations(emails, submitted)
	require.Len(t, confirmations, 1)
	assert.Equal(t, "j1", confirmations[0].JobID)
	assert.Equal(t, "no-reply@acme.com", confirmations[0].From)
}

func TestMatchConfirmationsIgnoresNonConfirmationEmails(t *testing.T) {
	emails := []Email{
		confirmationEmail("jobs@acme.com", "Acme newsletter", "Acme is hiring friends of employees."),
	}
	submitted := []models.Attempt{submittedAttempt("j1", "Acme")}

	assert.Empty(t, MatchConfirmations(emails, submitted))
}

func TestMatchConfirmationsMatchesEachAttemptOnce(t *testing.T) {
	emails := []Email{
		confirmationEmail("a@acme.com", "Application received - Acme", ""),
		confirmationEmail("b@acme.com", "Your application to Acme", ""),
	}
	submitted := []models.Attempt{submittedAttempt("j1", "Acme")}

	confirmations := MatchConfirmations(emails, submitted)
	assert.Len(t, confirmations, 1)
}

func TestScanRequiresConfiguration(t *testing.T) {
	scanner := NewScanner(&common.MailConfig{}, arbor.NewLogger())
	_, err := scanner.ScanForConfirmations(context.Background(), []models.Attempt{submittedAttempt("j1", "Acme")}, time.Now())
	assert.ErrorContains(t, err, "not configured")
}

func TestScanSkipsFetchWithoutSubmissions(t *testing.T) {
	scanner := NewScanner(&common.MailConfig{Host: "imap.example.com", Username: "u", Password: "p"}, arbor.NewLogger())
	fetched := false
	scanner.fetch = func(context.Context, time.Time) ([]Email, error) {
		fetched = true
		return nil, nil
	}

	attempts := []models.Attempt{{JobID: "j1", Company: "Acme", Result: models.AttemptFailed}}
	confirmations, err := scanner.ScanForConfirmations(context.Background(), attempts, time.Now())
	require.NoError(t, err)
	assert.Nil(t, confirmations)
	assert.False(t, fetched, "no submitted attempts means no mailbox round trip")
}

func TestScanMatchesFetchedEmails(t *testing.T) {
	scanner := NewScanner(&common.MailConfig{Host: "imap.example.com", Username: "u", Password: "p"}, arbor.NewLogger())
	scanner.fetch = func(context.Context, time.Time) ([]Email, error) {
		return []Email{
			confirmationEmail("careers@globex.com", "Globex application confirmation", "Thanks!"),
		}, nil
	}

	attempts := []models.Attempt{submittedAttempt("j1", "Globex")}
	confirmations, err := scanner.ScanForConfirmations(context.Background(), attempts, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, confirmations, 1)
	assert.Equal(t, "Globex", confirmations[0].Company)
}
