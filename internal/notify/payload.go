package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brandon/mailsync/pkg/types"
)

// payload is the JSON body shared by the webhook and Redis channels.
type payload struct {
	Event      string          `json:"event"`
	DeliveryID string          `json:"delivery_id"`
	SentAt     time.Time       `json:"sent_at"`
	Document   payloadDocument `json:"document"`
}

// payloadDocument omits bodies; receivers fetch them from the store.
type payloadDocument struct {
	ID         string         `json:"id"`
	AccountID  string         `json:"account_id"`
	Folder     string         `json:"folder"`
	UID        uint32         `json:"uid"`
	MessageID  string         `json:"message_id"`
	Subject    string         `json:"subject"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Date       time.Time      `json:"date"`
	AICategory types.Category `json:"ai_category"`
}

func newPayload(n *Notification) payload {
	doc := n.Document
	return payload{
		Event:      EventInterested,
		DeliveryID: n.DeliveryID,
		SentAt:     time.Now().UTC(),
		Document: payloadDocument{
			ID:         doc.ID,
			AccountID:  doc.AccountID,
			Folder:     doc.Folder,
			UID:        doc.UID,
			MessageID:  doc.MessageID,
			Subject:    doc.Subject,
			From:       doc.From,
			To:         doc.To,
			Date:       doc.Date,
			AICategory: doc.AICategory,
		},
	}
}

func marshalPayload(n *Notification) ([]byte, error) {
	b, err := json.Marshal(newPayload(n))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return b, nil
}

// summary is the one-line human readable form used by chat and email.
func summary(doc *types.EmailDocument) string {
	subject := doc.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return fmt.Sprintf("New %s reply on %s from %s: %s", doc.AICategory, doc.AccountID, doc.From, subject)
}
