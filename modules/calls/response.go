package calls

import (
	"maps"

	"github.com/parleyhq/parley/engine"
)

// The calls endpoints use the flat {"result", "msg"} envelope the rest of the
// product's JSON API uses, so clients can handle errors uniformly.

func jsonSuccess(extra map[string]any) engine.Response {
	body := map[string]any{"result": "success", "msg": ""}
	maps.Copy(body, extra)
	return engine.JSON(body)
}

func jsonError(msg string) engine.Response {
	return engine.JSONStatus(400, map[string]any{"result": "error", "msg": msg})
}
