package dispatch

// Result is the OperationResult returned across the dispatcher boundary.
// It never throws: every handler failure is translated into a populated
// Code/Message pair with Ok=false and Data=nil.
type Result struct {
	Ok      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps a successful result payload.
func OK(data any) Result {
	return Result{Ok: true, Data: data}
}

// Fail wraps a failed result. data is never populated on failure.
func Fail(code, message string) Result {
	return Result{Ok: false, Code: code, Message: message}
}

// FromError translates a typed *Error into a Result. Programmer errors are
// not expected here — they panic instead and are caught by Dispatch's
// recover boundary.
func FromError(err *Error) Result {
	return Fail(err.Code, err.Message)
}
