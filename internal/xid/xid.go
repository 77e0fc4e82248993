// Package xid generates receipt identifiers.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Ticket returns a receipt number of the form TKT-YYYYMMDD-HHMMSSmmm-XX.
// Numbers sort by creation time; the trailing hex pair separates tickets
// issued within the same millisecond.
func Ticket(now time.Time) string {
	suffix := make([]byte, 1)
	if _, err := rand.Read(suffix); err != nil {
		suffix[0] = byte(now.UnixNano())
	}
	return fmt.Sprintf(
		"TKT-%s-%s%03d-%s",
		now.Format("20060102"),
		now.Format("150405"),
		now.Nanosecond()/int(time.Millisecond),
		strings.ToUpper(hex.EncodeToString(suffix)),
	)
}
