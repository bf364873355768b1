package models

// PushSubscription holds one browser push endpoint per account. Re-subscribing
// upserts; a gone endpoint (HTTP 410) deletes the row.
type PushSubscription struct {
	BaseModel

	AccountID string `json:"account_id" gorm:"uniqueIndex"`
	Endpoint  string `json:"endpoint"`
	AuthKey   string `json:"auth_key"`
	P256dhKey string `json:"p256dh_key"`
}

// CallNotification records every outbound notification attempt.
type CallNotification struct {
	BaseModel

	Sid       string  `json:"sid" gorm:"index"`
	AccountID string  `json:"account_id" gorm:"index"`
	Channel   string  `json:"channel"`
	Topic     string  `json:"topic"`
	Succeeded bool    `json:"succeeded"`
	Detail    *string `json:"detail,omitempty"`
}
