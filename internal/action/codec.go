package action

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/start9labs/appmgr/internal/model"
)

// Encode marshals v using the codec a DockerAction's IOFormat names.
func Encode(format model.IOFormat, v any) ([]byte, error) {
	switch format {
	case model.IOFormatJSON, "":
		return json.Marshal(v)
	case model.IOFormatYAML:
		return yaml.Marshal(v)
	case model.IOFormatCBOR:
		return cbor.Marshal(v)
	case model.IOFormatTOML:
		return toml.Marshal(v)
	default:
		return nil, fmt.Errorf("action: unknown io format %q", format)
	}
}

// Decode unmarshals data using the codec named by format into v. If
// unmarshaling fails and v is a *string, the raw bytes are assigned as a
// UTF-8 string instead of returning an error — the action dispatcher treats
// a container that emitted plain text on stdout as a valid, if unstructured,
// result rather than a hard failure.
func Decode(format model.IOFormat, data []byte, v any) error {
	var err error
	switch format {
	case model.IOFormatJSON, "":
		err = json.Unmarshal(data, v)
	case model.IOFormatYAML:
		err = yaml.Unmarshal(data, v)
	case model.IOFormatCBOR:
		err = cbor.Unmarshal(data, v)
	case model.IOFormatTOML:
		err = toml.Unmarshal(data, v)
	default:
		return fmt.Errorf("action: unknown io format %q", format)
	}
	if err != nil {
		if sp, ok := v.(*string); ok {
			*sp = string(data)
			return nil
		}
		return fmt.Errorf("action: decoding %s output: %w", format, err)
	}
	return nil
}
