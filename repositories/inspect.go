package repositories

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"quorum/domain"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders the keys this package writes for the Badger inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MESSAGE"
		var record diskMessage
		if err := json.Unmarshal(val, &record); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("#%d %s: %s", record.Sequence, record.Sender, record.Body)
		if record.Attachment != nil {
			row.Detail += fmt.Sprintf(" [%s %dB]", record.Attachment.MimeType, record.Attachment.Size)
		}
	case strings.HasPrefix(key, "member:"):
		row.Type = "MEMBERSHIP"
		var membership domain.Membership
		if err := json.Unmarshal(val, &membership); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("%s is %s of %s", membership.UserID, membership.Role, membership.GroupID)
	case strings.HasPrefix(key, "seq:"):
		row.Type = "SEQUENCE"
		if len(val) != 8 {
			row.Detail = "Error: not a counter"
			return row
		}
		row.Detail = fmt.Sprintf("%s at %d", strings.TrimPrefix(key, "seq:"), binary.BigEndian.Uint64(val))
	}
	return row
}
