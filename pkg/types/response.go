package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// PageEnvelope wraps cursor-paginated list responses.
type PageEnvelope struct {
	Items      any    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}
