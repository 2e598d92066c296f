package domain

// Recipient is a person who can be notified for a group.
type Recipient struct {
	UserID      int    `json:"user_id"`
	UserName    string `json:"user_name"`
	PhoneNumber string `json:"phone_number"`
	SMSEnabled  bool   `json:"sms_enabled"`
	// WorksRestrictedDays marks recipients who stay on call on restricted days.
	WorksRestrictedDays bool `json:"works_restricted_days"`
}
