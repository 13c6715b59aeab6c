package repositories

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is a readable view of one stored key, used by the inspection tools.
type Record struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

// DescribeRecord decodes any key written by this package.
// Unknown or corrupt values come back as RAW with their size.
func DescribeRecord(key string, val []byte) Record {
	record := Record{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	prefix, _, _ := strings.Cut(key, ":")

	switch prefix {
	case "chat":
		var conv diskConversation
		if json.Unmarshal(val, &conv) != nil {
			return record
		}
		record.Type = strings.ToUpper(string(conv.Kind))
		record.Timestamp = clockTime(conv.LastActivity)
		record.EntityID = short(conv.ID)
		record.Detail = fmt.Sprintf("%d participants, %d messages", len(conv.Participants), conv.NextSeq)
		if conv.GroupName != "" {
			record.Detail = conv.GroupName + ": " + record.Detail
		}
	case "msg":
		var m diskMessage
		if json.Unmarshal(val, &m) != nil {
			return record
		}
		record.Type = "MESSAGE"
		record.Timestamp = clockTime(m.At)
		record.EntityID = short(m.ID)
		record.Detail = fmt.Sprintf("#%d %s: %s (read by %d)", m.Seq, m.SenderID, m.Content, len(m.ReadBy))
	case "user":
		var u diskUser
		if json.Unmarshal(val, &u) != nil {
			return record
		}
		record.Type = "USER"
		record.Timestamp = clockTime(u.UpdatedAt)
		record.EntityID = short(u.ID)
		record.Detail = u.Username
	case "pair":
		low, high, ok := splitPrefixed(strings.TrimPrefix(key, "pair:"))
		if !ok {
			return record
		}
		record.Type = "PAIR"
		record.EntityID = short(string(val))
		record.Detail = low + " / " + high
	case "member":
		userID, chatID, ok := splitPrefixed(strings.TrimPrefix(key, "member:"))
		if !ok {
			return record
		}
		record.Type = "MEMBER"
		record.EntityID = short(chatID)
		record.Detail = userID
	}
	return record
}

func clockTime(nanos int64) string {
	return time.Unix(0, nanos).UTC().Format("15:04:05")
}

// short keeps the first 8 characters for readability.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
