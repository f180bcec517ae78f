// Package types holds the value types shared by the settings and the report.
// The Null* types follow gopkg.in/guregu/null.v3: they know whether they were
// set at all, so that config layers can be merged.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var errNegativeDuration = errors.New("durations can't be negative")

// ParseDuration reads a timeout the way WebDriver settings are usually
// written: a bare number is milliseconds, anything else goes through
// time.ParseDuration.
func ParseDuration(s string) (time.Duration, error) {
	var d time.Duration
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(ms * float64(time.Millisecond))
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
	}
	if d < 0 {
		return 0, fmt.Errorf("%q: %w", s, errNegativeDuration)
	}
	return d, nil
}

// Duration is a time.Duration that is written to JSON as "1.5s".
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses the value with ParseDuration.
func (d *Duration) UnmarshalText(data []byte) error {
	v, err := ParseDuration(string(data))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON accepts both `"30s"` and `30000`.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("'%s' is not a valid duration value", data)
		}
		s = n.String()
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// NullDuration is a Duration that may be unset.
type NullDuration struct {
	Duration
	Valid bool
}

// NewNullDuration returns a NullDuration with the given validity.
func NewNullDuration(d time.Duration, valid bool) NullDuration {
	return NullDuration{Duration(d), valid}
}

// NullDurationFrom returns a valid NullDuration.
func NullDurationFrom(d time.Duration) NullDuration {
	return NewNullDuration(d, true)
}

// UnmarshalText treats empty input as unset. envconfig uses this for the
// WDRUNNER_*_TIMEOUT variables.
func (d *NullDuration) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = NullDuration{}
		return nil
	}
	if err := d.Duration.UnmarshalText(data); err != nil {
		return err
	}
	d.Valid = true
	return nil
}

// UnmarshalJSON treats null as unset.
func (d *NullDuration) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte(`null`)) {
		*d = NullDuration{}
		return nil
	}
	if err := d.Duration.UnmarshalJSON(data); err != nil {
		return err
	}
	d.Valid = true
	return nil
}

// MarshalJSON writes null for an unset value.
func (d NullDuration) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte(`null`), nil
	}
	return d.Duration.MarshalJSON()
}

// TimeDuration returns the value as a time.Duration, whether set or not.
func (d NullDuration) TimeDuration() time.Duration {
	return time.Duration(d.Duration)
}
