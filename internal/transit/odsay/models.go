package odsay

import (
	"encoding/json"

	"github.com/roomcommute/roomcommute/internal/transit"
)

// searchResponse is the searchPubTransPathT payload. On failure ODsay
// answers 200 with an "error" member that is an object or an array.
type searchResponse struct {
	Result *struct {
		SearchType int            `json:"searchType"`
		Path       []transit.Path `json:"path"`
	} `json:"result"`
	Error json.RawMessage `json:"error"`
}

type apiError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
}

// parseError reads the first error in raw. ok is false when raw carries none.
func parseError(raw json.RawMessage) (code, msg string, ok bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", "", false
	}

	var one apiError
	if err := json.Unmarshal(raw, &one); err != nil {
		var many []apiError
		if err := json.Unmarshal(raw, &many); err != nil || len(many) == 0 {
			return "", string(raw), true
		}
		one = many[0]
	}

	code = string(one.Code)
	if unquoted := ""; json.Unmarshal(one.Code, &unquoted) == nil {
		code = unquoted
	}
	msg = one.Message
	if msg == "" {
		msg = one.Msg
	}
	return code, msg, true
}
