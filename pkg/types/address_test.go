package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenAddresses(t *testing.T) {
	tests := []struct {
		name    string
		entries []AddressEntry
		want    []string
	}{
		{
			name:    "single addresses",
			entries: []AddressEntry{SingleAddress{Address: "A@Example.com"}, SingleAddress{Name: "Bob", Address: "bob@example.com"}},
			want:    []string{"a@example.com", "bob@example.com"},
		},
		{
			name: "group is flattened in place",
			entries: []AddressEntry{
				SingleAddress{Address: "first@example.com"},
				AddressGroup{Name: "team", Members: []SingleAddress{{Address: "x@example.com"}, {Address: "y@example.com"}}},
				SingleAddress{Address: "last@example.com"},
			},
			want: []string{"first@example.com", "x@example.com", "y@example.com", "last@example.com"},
		},
		{
			name:    "empty group and blank address",
			entries: []AddressEntry{AddressGroup{Name: "undisclosed-recipients"}, SingleAddress{Name: "nobody"}},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlattenAddresses(tt.entries))
		})
	}
}

func TestJoinRecipientsSentinel(t *testing.T) {
	assert.Equal(t, UnknownRecipient, JoinRecipients(nil))
	assert.Equal(t, UnknownRecipient, JoinRecipients([]AddressEntry{AddressGroup{Name: "empty"}}))
	assert.Equal(t, "a@example.com, b@example.com", JoinRecipients([]AddressEntry{
		SingleAddress{Address: "a@example.com"},
		AddressGroup{Members: []SingleAddress{{Address: "b@example.com"}}},
	}))
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input string
		want  Category
		ok    bool
	}{
		{"Interested", CategoryInterested, true},
		{"  meeting booked\n", CategoryMeetingBooked, true},
		{`"Out of Office"`, CategoryOutOfOffice, true},
		{"Spam.", CategorySpam, true},
		{"Maybe", CategoryUncategorized, false},
		{"", CategoryUncategorized, false},
	}

	for _, tt := range tests {
		got, ok := ParseCategory(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCategory(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "work-42", DocumentID("work", 42))
	assert.True(t, CategorySpam.Valid())
	assert.False(t, Category("spam").Valid())
}
