package processor

import (
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/brandon/mailsync/pkg/types"
)

// parseAddressList parses an address header, keeping RFC 5322 groups
// ("Team: a@x, b@y;") as AddressGroup entries. Entries that do not parse
// are dropped.
func parseAddressList(header string) []types.AddressEntry {
	var entries []types.AddressEntry
	var group *types.AddressGroup

	flush := func(item string) {
		addr, ok := parseSingle(item)
		if !ok {
			return
		}
		if group != nil {
			group.Members = append(group.Members, addr)
		} else {
			entries = append(entries, addr)
		}
	}

	var buf strings.Builder
	inQuote, escaped := false, false
	angle, comment := 0, 0

	for _, r := range header {
		if escaped {
			escaped = false
			buf.WriteRune(r)
			continue
		}

		switch {
		case r == '\\' && (inQuote || comment > 0):
			escaped = true
		case inQuote:
			if r == '"' {
				inQuote = false
			}
		case r == '"' && comment == 0:
			inQuote = true
		case r == '(':
			comment++
		case r == ')' && comment > 0:
			comment--
		case comment > 0:
		case r == '<':
			angle++
		case r == '>' && angle > 0:
			angle--
		case angle > 0:
		case r == ':' && group == nil:
			group = &types.AddressGroup{Name: strings.Trim(decodeHeader(strings.TrimSpace(buf.String())), `"`)}
			buf.Reset()
			continue
		case r == ',':
			flush(buf.String())
			buf.Reset()
			continue
		case r == ';' && group != nil:
			flush(buf.String())
			buf.Reset()
			entries = append(entries, *group)
			group = nil
			continue
		}
		buf.WriteRune(r)
	}

	flush(buf.String())
	if group != nil {
		entries = append(entries, *group)
	}
	return entries
}

func parseSingle(s string) (types.SingleAddress, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.SingleAddress{}, false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address == "" {
		return types.SingleAddress{}, false
	}
	return types.SingleAddress{Name: addr.Name, Address: addr.Address}, true
}

// firstAddress returns the first address in entries, or "".
func firstAddress(entries []types.AddressEntry) string {
	if addrs := types.FlattenAddresses(entries); len(addrs) > 0 {
		return addrs[0]
	}
	return ""
}
