package types

import "strings"

// UnknownRecipient is stored in EmailDocument.To when no recipient address
// could be extracted from the message.
const UnknownRecipient = "undisclosed-recipients@unknown.invalid"

// AddressEntry is one element of an address header: either a single
// mailbox or a named group of mailboxes (RFC 5322 section 3.4).
type AddressEntry interface {
	addressEntry()
}

// SingleAddress is a plain mailbox.
type SingleAddress struct {
	Name    string
	Address string
}

// AddressGroup is a display-named list of mailboxes, e.g.
// "team: a@example.com, b@example.com;".
type AddressGroup struct {
	Name    string
	Members []SingleAddress
}

func (SingleAddress) addressEntry() {}
func (AddressGroup) addressEntry()  {}

// FlattenAddresses returns every mailbox address in entries, lower-cased and
// in header order. Entries without an address are dropped.
func FlattenAddresses(entries []AddressEntry) []string {
	var out []string
	add := func(a SingleAddress) {
		addr := strings.ToLower(strings.TrimSpace(a.Address))
		if addr != "" {
			out = append(out, addr)
		}
	}
	for _, e := range entries {
		switch v := e.(type) {
		case SingleAddress:
			add(v)
		case AddressGroup:
			for _, m := range v.Members {
				add(m)
			}
		}
	}
	return out
}

// JoinRecipients flattens entries into the comma-joined form stored on a
// document, substituting UnknownRecipient when nothing was extracted.
func JoinRecipients(entries []AddressEntry) string {
	addrs := FlattenAddresses(entries)
	if len(addrs) == 0 {
		return UnknownRecipient
	}
	return strings.Join(addrs, ", ")
}
