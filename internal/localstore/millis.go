package localstore

import (
	"encoding/json"
	"strconv"
	"time"
)

// Millis is an epoch-millisecond timestamp that tolerates the mixed
// representations found in legacy records: a JSON number of millis, a
// numeric string, or an ISO-8601 string. Anything unparseable decodes to
// zero, which downstream code treats as "never". It always marshals back
// as a plain number, so the canonical form wins on the next write.
type Millis int64

// UnmarshalJSON normalizes the accepted timestamp forms to epoch-millis.
func (m *Millis) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*m = Millis(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*m = 0
		return nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*m = Millis(n)
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*m = Millis(t.UnixMilli())
		return nil
	}

	*m = 0
	return nil
}

// Time converts to a time.Time in UTC.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}
