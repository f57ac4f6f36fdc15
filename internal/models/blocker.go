package models

// BlockerType classifies a page obstacle that prevents autonomous completion
type BlockerType string

const (
	BlockerCaptcha          BlockerType = "captcha"
	BlockerLoginRequired    BlockerType = "login_required"
	BlockerMultiStepForm    BlockerType = "multi_step_form"
	BlockerLocationMismatch BlockerType = "location_mismatch"
	BlockerFileUpload       BlockerType = "file_upload"
	BlockerUnknown          BlockerType = "unknown"
)

// CaptchaFamily identifies a specific CAPTCHA vendor/version
type CaptchaFamily string

const (
	CaptchaTurnstile   CaptchaFamily = "turnstile"
	CaptchaHCaptcha    CaptchaFamily = "hcaptcha"
	CaptchaRecaptchaV2 CaptchaFamily = "recaptcha_v2"
	CaptchaRecaptchaV3 CaptchaFamily = "recaptcha_v3"
	CaptchaNone        CaptchaFamily = ""
)

// Blocker is a transient detection result produced per page analysis
type Blocker struct {
	Type            BlockerType `json:"type"`
	Subtype         string      `json:"subtype,omitempty"`
	Message         string      `json:"message"`
	Locator         string      `json:"locator,omitempty"`
	SuggestedAction string      `json:"suggested_action,omitempty"`
}
