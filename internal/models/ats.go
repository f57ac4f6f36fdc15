package models

// FormAnalysis describes an application form before filling
type FormAnalysis struct {
	TotalFields     int         `json:"total_fields"`
	HasFileUpload   bool        `json:"has_file_upload"`
	HasCoverLetter  bool        `json:"has_cover_letter"`
	CustomQuestions []FormField `json:"custom_questions,omitempty"`
}

// SubmitResult reports the outcome of a form submission attempt
type SubmitResult struct {
	Success      bool   `json:"success"`
	Confirmation string `json:"confirmation,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	Error        string `json:"error,omitempty"`
}
