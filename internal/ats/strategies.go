package ats

import (
	"regexp"

	"github.com/ternarybob/arbor"
)

// genericSelectors covers the common naming conventions across ATS
// platforms. Platform strategies override entries where the platform
// deviates.
func genericSelectors() map[string][]string {
	return map[string][]string{
		"first_name": {
			`input[name="first_name"]`,
			`input[name="firstName"]`,
			`input[autocomplete="given-name"]`,
			`input[id*="first_name"]`,
			`input[id*="first-name"]`,
		},
		"last_name": {
			`input[name="last_name"]`,
			`input[name="lastName"]`,
			`input[autocomplete="family-name"]`,
			`input[id*="last_name"]`,
			`input[id*="last-name"]`,
		},
		"full_name": {
			`input[name="name"]`,
			`input[name="full_name"]`,
			`input[autocomplete="name"]`,
		},
		"email": {
			`input[type="email"]`,
			`input[name="email"]`,
			`input[autocomplete="email"]`,
		},
		"phone": {
			`input[type="tel"]`,
			`input[name="phone"]`,
			`input[autocomplete="tel"]`,
			`input[id*="phone"]`,
		},
		"linkedin": {
			`input[name*="linkedin"]`,
			`input[id*="linkedin"]`,
			`input[placeholder*="linkedin" i]`,
		},
		"github": {
			`input[name*="github"]`,
			`input[id*="github"]`,
		},
		"portfolio": {
			`input[name*="portfolio"]`,
			`input[name*="website"]`,
			`input[id*="portfolio"]`,
		},
		"city": {
			`input[name="city"]`,
			`input[id*="city"]`,
			`input[autocomplete="address-level2"]`,
		},
		"country": {
			`input[name="country"]`,
			`select[name="country"]`,
			`input[autocomplete="country-name"]`,
		},
		"resume": {
			`input[type="file"][name*="resume"]`,
			`input[type="file"][name*="cv"]`,
			`input[type="file"]`,
		},
		"cover_letter": {
			`textarea[name*="cover"]`,
			`textarea[id*="cover"]`,
			`textarea[name*="letter"]`,
		},
	}
}

func genericSubmitSelectors() []string {
	return []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button[id*="submit"]`,
		`button[class*="submit"]`,
	}
}

// NewGeneric is the fallback used when no platform matches. It never
// self-detects; the registry returns it explicitly.
func NewGeneric(logger arbor.ILogger) Strategy {
	return &baseStrategy{
		name:            "generic",
		selectors:       genericSelectors(),
		submitSelectors: genericSubmitSelectors(),
		logger:          logger,
	}
}

// NewGreenhouse handles boards.greenhouse.io and embedded Greenhouse forms
func NewGreenhouse(logger arbor.ILogger) Strategy {
	selectors := genericSelectors()
	selectors["first_name"] = []string{`input#first_name`, `input[name="job_application[first_name]"]`}
	selectors["last_name"] = []string{`input#last_name`, `input[name="job_application[last_name]"]`}
	selectors["email"] = []string{`input#email`, `input[name="job_application[email]"]`}
	selectors["phone"] = []string{`input#phone`, `input[name="job_application[phone]"]`}
	selectors["resume"] = []string{`input#resume`, `input[type="file"][name*="resume"]`, `input[type="file"]`}
	selectors["cover_letter"] = []string{`textarea#cover_letter_text`, `textarea[name*="cover_letter"]`}

	return &baseStrategy{
		name: "greenhouse",
		urlPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)boards\.greenhouse\.io`),
			regexp.MustCompile(`(?i)job-boards\.greenhouse\.io`),
			regexp.MustCompile(`(?i)greenhouse\.io/.*/jobs/`),
		},
		contentMarkers:  []string{"greenhouse.io", "grnhse"},
		selectors:       selectors,
		submitSelectors: []string{`input#submit_app`, `button[type="submit"]`},
		logger:          logger,
	}
}

// NewLever handles jobs.lever.co postings
func NewLever(logger arbor.ILogger) Strategy {
	selectors := genericSelectors()
	selectors["full_name"] = []string{`input[name="name"]`}
	selectors["email"] = []string{`input[name="email"]`}
	selectors["phone"] = []string{`input[name="phone"]`}
	selectors["linkedin"] = []string{`input[name="urls[LinkedIn]"]`}
	selectors["github"] = []string{`input[name="urls[GitHub]"]`}
	selectors["portfolio"] = []string{`input[name="urls[Portfolio]"]`}
	selectors["resume"] = []string{`input[name="resume"]`, `input[type="file"]`}
	selectors["cover_letter"] = []string{`textarea[name="comments"]`}

	return &baseStrategy{
		name: "lever",
		urlPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)jobs\.lever\.co`),
		},
		contentMarkers:  []string{"lever.co", "lever-"},
		selectors:       selectors,
		submitSelectors: []string{`button[data-qa="btn-submit"]`, `button[type="submit"]`},
		logger:          logger,
	}
}

// NewWorkday handles myworkdayjobs.com flows. Workday's widgets drop
// synthetic keystrokes, so values are written with the script path.
func NewWorkday(logger arbor.ILogger) Strategy {
	selectors := genericSelectors()
	selectors["first_name"] = []string{`input[data-automation-id="legalNameSection_firstName"]`, `input[id*="firstName"]`}
	selectors["last_name"] = []string{`input[data-automation-id="legalNameSection_lastName"]`, `input[id*="lastName"]`}
	selectors["email"] = []string{`input[data-automation-id="email"]`, `input[type="email"]`}
	selectors["phone"] = []string{`input[data-automation-id="phone-number"]`, `input[type="tel"]`}
	selectors["resume"] = []string{`input[data-automation-id="file-upload-input-ref"]`, `input[type="file"]`}

	return &baseStrategy{
		name: "workday",
		urlPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)myworkdayjobs\.com`),
			regexp.MustCompile(`(?i)\.wd\d+\.myworkdaysite\.com`),
		},
		contentMarkers:  []string{"workday", "data-automation-id"},
		selectors:       selectors,
		submitSelectors: []string{`button[data-automation-id="bottom-navigation-next-button"]`, `button[type="submit"]`},
		useJSFill:       true,
		logger:          logger,
	}
}

// NewAshby handles jobs.ashbyhq.com postings
func NewAshby(logger arbor.ILogger) Strategy {
	selectors := genericSelectors()
	selectors["full_name"] = []string{`input[name="_systemfield_name"]`, `input[name="name"]`}
	selectors["email"] = []string{`input[name="_systemfield_email"]`, `input[type="email"]`}
	selectors["resume"] = []string{`input[name="_systemfield_resume"]`, `input[type="file"]`}

	return &baseStrategy{
		name: "ashby",
		urlPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)jobs\.ashbyhq\.com`),
		},
		contentMarkers:  []string{"ashbyhq", "_systemfield_"},
		selectors:       selectors,
		submitSelectors: []string{`button[type="submit"]`},
		logger:          logger,
	}
}

// NewLinkedIn handles linkedin.com Easy Apply. Requires an already
// authenticated session; the pipeline enforces that before dispatch.
func NewLinkedIn(logger arbor.ILogger) Strategy {
	selectors := genericSelectors()
	selectors["phone"] = []string{`input[id*="phoneNumber"]`, `input[type="tel"]`}
	selectors["resume"] = []string{`input[name="file"]`, `input[type="file"]`}

	return &baseStrategy{
		name: "linkedin",
		urlPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)linkedin\.com/jobs`),
		},
		contentMarkers:  []string{"jobs-easy-apply", "easy apply"},
		selectors:       selectors,
		submitSelectors: []string{`button[aria-label="Submit application"]`, `button[aria-label="Review your application"]`, `button[type="submit"]`},
		useJSFill:       true,
		logger:          logger,
	}
}
