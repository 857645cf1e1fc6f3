package attendsync

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/fivesaside/touchline/core/attendance"
)

// KeyPrefix prefixes every cache key owned by the synchronizer.
const KeyPrefix = "attendance/"

const (
	listPrefix   = KeyPrefix + "list/"
	statusPrefix = KeyPrefix + "status/"
)

// ListKey is the cache key of the attendance list of a match.
func ListKey(matchID string) string {
	return listPrefix + matchID
}

// StatusKey is the cache key of a user's status for a match.
func StatusKey(matchID, userID string) string {
	return statusPrefix + matchID + "/" + userID
}

// Decode restores persisted synchronizer entries to their typed form.
func Decode(key string, raw []byte) (interface{}, error) {
	switch {
	case strings.HasPrefix(key, listPrefix):
		var list attendance.List
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.Wrap(err, "decoding attendance list")
		}
		return list, nil
	case strings.HasPrefix(key, statusPrefix):
		var st attendance.Status
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, errors.Wrap(err, "decoding attendance status")
		}
		return st, nil
	}
	return nil, errors.Errorf("unknown cache key %q", key)
}

func asList(data interface{}) attendance.List {
	list, _ := data.(attendance.List)
	return list
}
