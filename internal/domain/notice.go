package domain

import "time"

// NoticeLevel is the severity of a shopper-facing notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient message for the shopper.
type Notice struct {
	Level     NoticeLevel `json:"level"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}
