package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Price is a subscription price. It decodes from a JSON number or from a
// numeric string as sent by HTML forms; anything unparsable decodes to 0 and
// is rejected by validation.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*p = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*p = 0
		return nil
	}
	*p = Price(v)
	return nil
}

// OptionalMillis is an optional point in time in epoch milliseconds.
// It decodes from a JSON number, a numeric string, an RFC 3339 timestamp or a
// YYYY-MM-DD date (UTC midnight). null and "" leave it unset.
type OptionalMillis struct {
	Millis int64
	Valid  bool
}

// MillisOf returns a set OptionalMillis for t.
func MillisOf(t time.Time) OptionalMillis {
	return OptionalMillis{Millis: t.UnixMilli(), Valid: true}
}

func (o *OptionalMillis) UnmarshalJSON(data []byte) error {
	*o = OptionalMillis{}
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if !bytes.HasPrefix(data, []byte(`"`)) {
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("renewalDate: %w", err)
		}
		if math.IsNaN(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return fmt.Errorf("renewalDate %s is out of range", data)
		}
		*o = OptionalMillis{Millis: int64(v), Valid: true}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*o = OptionalMillis{Millis: ms, Valid: true}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*o = MillisOf(t)
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		*o = MillisOf(t)
		return nil
	}
	return fmt.Errorf("renewalDate %q is neither epoch milliseconds nor an ISO date", s)
}

func (o OptionalMillis) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(o.Millis, 10)), nil
}
