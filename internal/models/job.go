package models

import "time"

// JobStatus follows the external job store's lifecycle. The pipeline may
// write only the leaf transitions: applied, blocked, archived, and inbox
// for retryable failures.
type JobStatus string

const (
	JobInbox       JobStatus = "inbox"
	JobInteresting JobStatus = "interesting"
	JobAdapted     JobStatus = "adapted"
	JobReady       JobStatus = "ready"
	JobApplied     JobStatus = "applied"
	JobBlocked     JobStatus = "blocked"
	JobRejected    JobStatus = "rejected"
	JobArchived    JobStatus = "archived"
)

// Job is a posting owned by the external job store; the core reads it
// and requests status updates.
type Job struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	Location  string    `json:"location,omitempty"`
	Platform  string    `json:"platform,omitempty"` // ATS hint, e.g. "greenhouse"
	UserID    string    `json:"user_id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile carries the identity fields used to fill application forms.
// Owned by the external user store; the core only reads.
type UserProfile struct {
	ID               string `json:"id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PhoneCountryCode string `json:"phone_country_code,omitempty"`
	AddressLine      string `json:"address_line,omitempty"`
	City             string `json:"city,omitempty"`
	Country          string `json:"country,omitempty"`
	LinkedInURL      string `json:"linkedin_url,omitempty"`
	GithubURL        string `json:"github_url,omitempty"`
	PortfolioURL     string `json:"portfolio_url,omitempty"`
	CVText           string `json:"cv_text,omitempty"`
	LinkedInLinked   bool   `json:"linkedin_linked"` // Active linked LinkedIn session
}

// FormData flattens the profile into logical field name -> value pairs
// consumed by ATS strategies.
func (u *UserProfile) FormData() map[string]string {
	data := map[string]string{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"full_name":  u.FirstName + " " + u.LastName,
		"email":      u.Email,
		"phone":      u.Phone,
	}
	if u.PhoneCountryCode != "" {
		data["phone_country_code"] = u.PhoneCountryCode
		data["phone_full"] = u.PhoneCountryCode + u.Phone
	}
	if u.LinkedInURL != "" {
		data["linkedin"] = u.LinkedInURL
	}
	if u.GithubURL != "" {
		data["github"] = u.GithubURL
	}
	if u.PortfolioURL != "" {
		data["portfolio"] = u.PortfolioURL
	}
	if u.City != "" {
		data["city"] = u.City
	}
	if u.Country != "" {
		data["country"] = u.Country
	}
	return data
}
