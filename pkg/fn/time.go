package fn

import (
	"time"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

func init() {
	Register("now", Arity{Min: 0, Max: 0}, fnNow)
	Register("to_timestamp", Arity{Min: 1, Max: 2}, fnToTimestamp)
	Register("from_timestamp", Arity{Min: 1, Max: 2}, fnFromTimestamp)
}

// fnNow returns the current UTC time in RFC 3339 form.
func fnNow(args []types.Value) (types.Value, error) {
	return types.NewString(time.Now().UTC().Format(time.RFC3339)), nil
}

// fnToTimestamp converts an RFC 3339 datetime string to a Unix epoch.
// The optional second argument selects the unit: "s" (default) or "ms".
func fnToTimestamp(args []types.Value) (types.Value, error) {
	s, err := argString("to_timestamp", args, 0)
	if err != nil {
		return types.Null, err
	}
	unit := "s"
	if len(args) == 2 {
		unit, err = argString("to_timestamp", args, 1)
		if err != nil {
			return types.Null, err
		}
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return types.Null, types.NewValueError("invalid datetime string: " + err.Error())
	}

	switch unit {
	case "s":
		return types.NewInt(t.Unix()), nil
	case "ms":
		return types.NewInt(t.UnixMilli()), nil
	}
	return types.Null, types.NewValueError("to_timestamp unit must be \"s\" or \"ms\", got " + unit)
}

// fnFromTimestamp converts a Unix epoch to an RFC 3339 datetime string.
// The optional second argument selects the input unit: "s" (default) or
// "ms".
func fnFromTimestamp(args []types.Value) (types.Value, error) {
	epoch, err := argInt("from_timestamp", args, 0)
	if err != nil {
		return types.Null, err
	}
	unit := "s"
	if len(args) == 2 {
		unit, err = argString("from_timestamp", args, 1)
		if err != nil {
			return types.Null, err
		}
	}

	var t time.Time
	switch unit {
	case "s":
		t = time.Unix(epoch, 0)
	case "ms":
		t = time.UnixMilli(epoch)
	default:
		return types.Null, types.NewValueError("from_timestamp unit must be \"s\" or \"ms\", got " + unit)
	}
	return types.NewString(t.UTC().Format(time.RFC3339)), nil
}
