package fn

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/aqueductflow/aqueduct/pkg/types"
)

func init() {
	Register("b64encode", Arity{Min: 1, Max: 1}, fnB64Encode)
	Register("b64decode", Arity{Min: 1, Max: 1}, fnB64Decode)
	Register("serialize_json", Arity{Min: 1, Max: 1}, fnSerializeJSON)
	Register("deserialize_json", Arity{Min: 1, Max: 1}, fnDeserializeJSON)
	Register("prettify_json", Arity{Min: 1, Max: 1}, fnPrettifyJSON)
}

func fnB64Encode(args []types.Value) (types.Value, error) {
	s, err := argString("b64encode", args, 0)
	if err != nil {
		return types.Null, err
	}
	return types.NewString(base64.StdEncoding.EncodeToString([]byte(s))), nil
}

func fnB64Decode(args []types.Value) (types.Value, error) {
	s, err := argString("b64decode", args, 0)
	if err != nil {
		return types.Null, err
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return types.Null, types.NewValueError("invalid base64 input: " + err.Error())
	}
	return types.NewString(string(decoded)), nil
}

func fnSerializeJSON(args []types.Value) (types.Value, error) {
	b, err := args[0].MarshalJSON()
	if err != nil {
		return types.Null, types.NewValueError("cannot serialize value to JSON: " + err.Error())
	}
	return types.NewString(string(b)), nil
}

func fnDeserializeJSON(args []types.Value) (types.Value, error) {
	s, err := argString("deserialize_json", args, 0)
	if err != nil {
		return types.Null, err
	}
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return types.Null, types.NewValueError("invalid JSON input: " + err.Error())
	}
	return types.FromGo(raw), nil
}

func fnPrettifyJSON(args []types.Value) (types.Value, error) {
	b, err := args[0].MarshalJSON()
	if err != nil {
		return types.Null, types.NewValueError("cannot serialize value to JSON: " + err.Error())
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, b, "", "  "); err != nil {
		return types.Null, types.NewValueError("cannot prettify JSON: " + err.Error())
	}
	return types.NewString(pretty.String()), nil
}
