package xid

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ticketPattern = regexp.MustCompile(`^TKT-\d{8}-\d{9}-[0-9A-F]{2}$`)

func TestTicketFormat(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 5, 7, 42*int(time.Millisecond), time.UTC)

	ticket := Ticket(at)

	assert.Regexp(t, ticketPattern, ticket)
	assert.Equal(t, "TKT-20260310-090507042-", ticket[:len(ticket)-2])
}

func TestTicketUsesGivenZone(t *testing.T) {
	zone := time.FixedZone("CST", -6*60*60)
	at := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)

	assert.Contains(t, Ticket(at.In(zone)), "TKT-20260310-210000000-")
}
