package kakao

// directionsResponse is the single-origin directions payload.
type directionsResponse struct {
	Routes []route `json:"routes"`
}

// originsRequest is the multi-origin directions request body.
type originsRequest struct {
	Origins     []originPoint `json:"origins"`
	Destination point         `json:"destination"`
	Radius      int           `json:"radius"`
}

type originPoint struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Key    string  `json:"key"`
	Radius int     `json:"radius,omitempty"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// originsResponse is the multi-origin directions payload.
type originsResponse struct {
	Routes []route `json:"routes"`
}

type route struct {
	ResultCode int      `json:"result_code"`
	ResultMsg  string   `json:"result_msg"`
	Key        string   `json:"key"`
	Summary    *summary `json:"summary"`
}

type summary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// addressResponse is the local address search payload. Coordinates arrive as strings.
type addressResponse struct {
	Documents []struct {
		AddressName string `json:"address_name"`
		X           string `json:"x"`
		Y           string `json:"y"`
	} `json:"documents"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func (e errorResponse) text() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Message
}
