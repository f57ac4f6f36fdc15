package mail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/models"
)

// confirmationPhrases mark an email as an application confirmation
var confirmationPhrases = []string{
	"application received",
	"thank you for applying",
	"we have received your application",
	"your application to",
	"application confirmation",
	"application has been submitted",
}

// Email is one fetched message, reduced to what matching needs
type Email struct {
	From    string
	Subject string
	Body    string
	Date    time.Time
}

// Confirmation links a submitted application to a confirmation email
type Confirmation struct {
	JobID   string    `json:"job_id"`
	Company string    `json:"company"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
}

// Scanner checks a mailbox for application confirmation emails after a
// pipeline run
type Scanner struct {
	config *common.MailConfig
	logger arbor.ILogger

	// fetch is replaceable in tests
	fetch func(ctx context.Context, since time.Time) ([]Email, error)
}

// NewScanner creates a mailbox scanner
func NewScanner(config *common.MailConfig, logger arbor.ILogger) *Scanner {
	s := &Scanner{
		config: config,
		logger: logger,
	}
	s.fetch = s.fetchSince
	return s
}

// Configured reports whether the scanner has connection credentials
func (s *Scanner) Configured() bool {
	return s.config != nil && s.config.Host != "" && s.config.Username != "" && s.config.Password != ""
}

// ScanForConfirmations fetches messages received since the given time
// and matches them against successfully submitted attempts. Matches are
// logged and returned; nothing is mutated server-side.
func (s *Scanner) ScanForConfirmations(ctx context.Context, attempts []models.Attempt, since time.Time) ([]Confirmation, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("mail scanner not configured")
	}

	var submitted []models.Attempt
	for _, attempt := range attempts {
		if attempt.Result == models.AttemptSuccess {
			submitted = append(submitted, attempt)
		}
	}
	if len(submitted) == 0 {
		return nil, nil
	}

	emails, err := s.fetch(ctx, since)
	if err != nil {
		return nil, err
	}

	confirmations := MatchConfirmations(emails, submitted)
	for _, confirmation := range confirmations {
		s.logger.Info().
			Str("job_id", confirmation.JobID).
			Str("company", confirmation.Company).
			Str("from", confirmation.From).
			Str("subject", confirmation.Subject).
			Msg("Application confirmation email found")
	}

	s.logger.Info().
		Int("emails", len(emails)).
		Int("submitted", len(submitted)).
		Int("confirmed", len(confirmations)).
		Msg("Confirmation scan finished")
	return confirmations, nil
}

// MatchConfirmations pairs confirmation-looking emails with submitted
// attempts by company name. Each attempt matches at most once.
func MatchConfirmations(emails []Email, submitted []models.Attempt) []Confirmation {
	var confirmations []Confirmation
	matched := make(map[string]bool)

	for _, email := range emails {
		if !looksLikeConfirmation(email) {
			continue
		}
		haystack := strings.ToLower(email.Subject + " " + email.From + " " + email.Body)

		for _, attempt := range submitted {
			if matched[attempt.JobID] || attempt.Company == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(attempt.Company)) {
				matched[attempt.JobID] = true
				confirmations = append(confirmations, Confirmation{
					JobID:   attempt.JobID,
					Company: attempt.Company,
					From:    email.From,
					Subject: email.Subject,
					Date:    email.Date,
				})
				break
			}
		}
	}
	return confirmations
}

func looksLikeConfirmation(email Email) bool {
	haystack := strings.ToLower(email.Subject + " " + email.Body)
	for _, phrase := range confirmationPhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}

// fetchSince connects to the configured mailbox and fetches messages
// received since the given time
func (s *Scanner) fetchSince(_ context.Context, since time.Time) ([]Email, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer c.Logout()

	if err := c.Login(s.config.Username, s.config.Password); err != nil {
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	mailbox := s.config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := c.Select(mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var emails []Email
	for msg := range messages {
		if msg == nil || msg.Envelope == nil {
			continue
		}

		from := ""
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}

		body, err := parseMessageBody(msg, section)
		if err != nil {
			s.logger.Warn().Err(err).Int("seq", int(msg.SeqNum)).Msg("Failed to parse message body")
		}

		emails = append(emails, Email{
			From:    from,
			Subject: msg.Envelope.Subject,
			Body:    body,
			Date:    msg.Envelope.Date,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return emails, nil
}

// parseMessageBody extracts the text/plain part of a message
func parseMessageBody(msg *imap.Message, section *imap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	var body string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if strings.HasPrefix(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read body: %w", err)
				}
				body = string(b)
			}
		}
	}
	return strings.TrimSpace(body), nil
}
