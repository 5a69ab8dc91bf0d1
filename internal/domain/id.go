package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParticipantID is the canonical string form of a user id. Backends send ids
// either as JSON strings or numbers; both decode to the same value.
type ParticipantID string

func (id ParticipantID) String() string { return string(id) }

// CanonicalID normalises any id representation seen at a boundary.
func CanonicalID(v any) ParticipantID {
	switch x := v.(type) {
	case nil:
		return ""
	case ParticipantID:
		return ParticipantID(strings.TrimSpace(string(x)))
	case string:
		return ParticipantID(strings.TrimSpace(x))
	case int:
		return ParticipantID(strconv.Itoa(x))
	case int64:
		return ParticipantID(strconv.FormatInt(x, 10))
	case uint64:
		return ParticipantID(strconv.FormatUint(x, 10))
	case float64:
		return ParticipantID(strconv.FormatFloat(x, 'f', -1, 64))
	case json.Number:
		return ParticipantID(x.String())
	case fmt.Stringer:
		return ParticipantID(strings.TrimSpace(x.String()))
	default:
		return ParticipantID(strings.TrimSpace(fmt.Sprint(x)))
	}
}

func (id *ParticipantID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = CanonicalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("participant id: %w", err)
	}
	*id = CanonicalID(n)
	return nil
}
