package types

import (
	"fmt"
	"strings"
	"time"
)

// EmailDocument is the canonical indexed representation of one message.
type EmailDocument struct {
	ID         string    `json:"id" db:"id"`
	AccountID  string    `json:"account_id" db:"account_id"`
	Folder     string    `json:"folder" db:"folder"`
	UID        uint32    `json:"uid" db:"uid"`
	MessageID  string    `json:"message_id" db:"message_id"`
	Subject    string    `json:"subject" db:"subject"`
	BodyText   string    `json:"body_text,omitempty" db:"body_text"`
	BodyHTML   string    `json:"body_html,omitempty" db:"body_html"`
	From       string    `json:"from" db:"from_addr"`
	To         string    `json:"to" db:"to_addrs"`
	Date       time.Time `json:"date"`
	AICategory Category  `json:"ai_category" db:"ai_category"`
	Read       bool      `json:"read" db:"is_read"`
	Flags      []string  `json:"flags,omitempty"`
}

// DocumentID returns the deterministic store key for a message.
func DocumentID(accountID string, uid uint32) string {
	return fmt.Sprintf("%s-%d", accountID, uid)
}

// Category is the AI classification label attached to every document.
type Category string

const (
	CategoryInterested    Category = "Interested"
	CategoryMeetingBooked Category = "Meeting Booked"
	CategoryNotInterested Category = "Not Interested"
	CategorySpam          Category = "Spam"
	CategoryOutOfOffice   Category = "Out of Office"
	CategoryUncategorized Category = "Uncategorized"
)

// Categories lists the closed label set in prompt order.
var Categories = []Category{
	CategoryInterested,
	CategoryMeetingBooked,
	CategoryNotInterested,
	CategorySpam,
	CategoryOutOfOffice,
	CategoryUncategorized,
}

// ParseCategory matches s against the label set, ignoring case and
// surrounding whitespace or quotes.
func ParseCategory(s string) (Category, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"'.`)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return CategoryUncategorized, false
}

// Valid reports whether c is exactly one of the six labels.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
