package coordinator

import (
	"encoding/json"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
	"github.com/calmlysettled/relocation-gateway/internal/geo"
	"github.com/calmlysettled/relocation-gateway/internal/utils"
)

// coordPrecision is the number of decimals latitude/longitude are rounded to
// before keying, about 110 m.
const coordPrecision = 3

// DedupeKey returns kind + ":" + canonical JSON of body. Top-level
// latitude/longitude and coordinates.lat/lng are rounded to three decimals so
// that nearby points map to the same key.
func DedupeKey(kind domain.RequestType, body json.RawMessage) (string, error) {
	canon, err := utils.CanonicalJSON(body, roundCoords)
	if err != nil {
		return "", err
	}
	return string(kind) + ":" + string(canon), nil
}

func roundCoords(v any) {
	obj, ok := v.(map[string]any)
	if !ok {
		return
	}
	roundField(obj, "latitude")
	roundField(obj, "longitude")
	if c, ok := obj["coordinates"].(map[string]any); ok {
		roundField(c, "lat")
		roundField(c, "lng")
	}
}

func roundField(obj map[string]any, name string) {
	n, ok := obj[name].(json.Number)
	if !ok {
		return
	}
	f, err := n.Float64()
	if err != nil {
		return
	}
	obj[name] = geo.Round(f, coordPrecision)
}
