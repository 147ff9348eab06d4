package hcache

import (
	"fmt"
	"io"

	"github.com/emersion/go-message/mail"
)

// ParseEntry builds a cache entry from a raw RFC 5322 message. Only the
// header is consumed; the body is left unread. Individually malformed
// header fields are tolerated, a message without a parsable header is not.
func ParseEntry(r io.Reader) (*Entry, error) {
	// CreateReader can return a usable reader alongside a charset error;
	// only a nil reader is fatal.
	mr, err := mail.CreateReader(r)
	if mr == nil {
		return nil, fmt.Errorf("parsing message header: %w", err)
	}

	e := &Entry{}
	h := mr.Header

	if mid, err := h.MessageID(); err == nil {
		e.MessageID = mid
	}
	if subj, err := h.Subject(); err == nil {
		e.Subject = subj
	}
	if date, err := h.Date(); err == nil {
		e.Date = date
	}
	if froms, err := h.AddressList("From"); err == nil && len(froms) > 0 {
		e.From = froms[0].Address
	}
	if tos, err := h.AddressList("To"); err == nil {
		for _, a := range tos {
			e.To = append(e.To, a.Address)
		}
	}
	return e, nil
}
