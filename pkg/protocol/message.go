package protocol

import "encoding/json"

// RequestID is the opaque token correlating a Response with its Request.
type RequestID string

// Reserved ids for responses the worker sends without a matching request.
const (
	// ReadyID announces that the engine instance is constructed and calls
	// will be served. Sent exactly once per worker.
	ReadyID RequestID = "worker-ready"

	// FailedID announces that the worker could not bring the engine up.
	// The response carries an Error with CodeLoadFailed.
	FailedID RequestID = "worker-failed"
)

// IsReserved reports whether id is one of the unsolicited signal ids.
func (id RequestID) IsReserved() bool {
	return id == ReadyID || id == FailedID
}

// Request asks the worker to run one operation.
type Request struct {
	ID    RequestID         `json:"id"`
	Which string            `json:"which"`
	Args  []json.RawMessage `json:"args"`
}

// Response is the worker's answer to a Request, or a readiness/failure
// signal when ID is reserved.
type Response struct {
	ID     RequestID       `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// ErrorCode classifies a failed operation.
type ErrorCode string

const (
	CodeInvalidRequest       ErrorCode = "invalid_request"
	CodeUnknownOperation     ErrorCode = "unknown_operation"
	CodeUnsupportedOperation ErrorCode = "unsupported_operation"
	CodeEngineError          ErrorCode = "engine_error"
	CodeTimeout              ErrorCode = "timeout"
	CodeLoadFailed           ErrorCode = "load_failed"
)

// ErrorPayload is the structured error carried by a failed Response.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewError builds a correlated error response.
func NewError(id RequestID, code ErrorCode, message string) *Response {
	return &Response{
		ID:    id,
		Error: &ErrorPayload{Code: code, Message: message},
	}
}

// EncodeRequest marshals a request frame.
func EncodeRequest(req *Request) ([]byte, error) {
	if req.Args == nil {
		req.Args = []json.RawMessage{}
	}
	return json.Marshal(req)
}

// DecodeRequest unmarshals a request frame.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// PeekID extracts the id of a frame that failed to decode as a Request, so
// the failure can still be correlated. It returns "" when the frame is not a
// JSON object or has no string id.
func PeekID(data []byte) RequestID {
	var probe struct {
		ID RequestID `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ID
}

// EncodeResponse marshals a response frame.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse unmarshals a response frame.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
