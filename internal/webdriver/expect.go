package webdriver

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/liuxd6825/wdrunner/lib"
)

// ExpectationError is a failed step expectation.
type ExpectationError struct {
	Path   string
	Reason string
}

func (ee *ExpectationError) Error() string {
	return fmt.Sprintf("expectation on %q failed: %s", ee.Path, ee.Reason)
}

// Check evaluates e against a JSON response. Without any of Equals, Contains
// or Exists the path only has to exist.
func Check(e lib.Expectation, data []byte) error {
	res := gjson.GetBytes(data, e.Path)
	fail := func(format string, args ...interface{}) error {
		return &ExpectationError{Path: e.Path, Reason: fmt.Sprintf(format, args...)}
	}

	if e.Exists != nil && res.Exists() != *e.Exists {
		if *e.Exists {
			return fail("path does not exist")
		}
		return fail("path exists with value %s", res.Raw)
	}
	if e.Equals != nil {
		want, err := normalize(e.Equals)
		if err != nil {
			return fail("invalid expected value: %v", err)
		}
		if !res.Exists() || !reflect.DeepEqual(want, res.Value()) {
			return fail("expected %v, got %s", e.Equals, rawOrMissing(res))
		}
	}
	if e.Contains != "" && (!res.Exists() || !strings.Contains(res.String(), e.Contains)) {
		return fail("expected %s to contain %q", rawOrMissing(res), e.Contains)
	}
	if e.Exists == nil && e.Equals == nil && e.Contains == "" && !res.Exists() {
		return fail("path does not exist")
	}
	return nil
}

// normalize gives v the shape gjson's Value() uses: float64 numbers and
// map[string]interface{} objects.
func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var res interface{}
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func rawOrMissing(res gjson.Result) string {
	if !res.Exists() {
		return "nothing"
	}
	return res.Raw
}
