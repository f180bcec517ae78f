package errext

import (
	"errors"
)

// Format formats the given error as a message (string) and a map of fields.
// The message is always err.Error(). In case of [HasHint] with a non-empty
// hint, the hint is added as a field. In case of [HasTrace] asking for it, the
// wrapped cause is added as a field.
func Format(err error) (string, map[string]interface{}) {
	if err == nil {
		return "", nil
	}

	fields := make(map[string]interface{})
	var herr HasHint
	if errors.As(err, &herr) {
		if hint := herr.Hint(); hint != "" {
			fields["hint"] = hint
		}
	}

	var terr HasTrace
	if errors.As(err, &terr) && terr.ShouldShowTrace() {
		if cause := terr.Unwrap(); cause != nil {
			fields["cause"] = cause.Error()
		}
	}

	return err.Error(), fields
}
