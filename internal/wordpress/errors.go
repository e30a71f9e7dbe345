package wordpress

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrTransport marks failures reaching the XML-RPC endpoint: connection
// errors, timeouts, non-2xx HTTP responses and undecodable bodies.
var ErrTransport = errors.New("xml-rpc transport error")

// FaultError is an explicit rejection by the remote service. Code and
// Message are passed through from the XML-RPC fault struct.
type FaultError struct {
	Method  string
	Code    int
	Message string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: fault %d: %s", e.Method, e.Code, e.Message)
}

// faultRx matches the string form of xmlrpc.FaultError. net/rpc flattens the
// fault into an rpc.ServerError carrying only this text.
var faultRx = regexp.MustCompile(`(?s)^Fault\((-?\d+)\): (.*)$`)

// classify turns an error from the XML-RPC client into either a
// *FaultError or an error wrapping ErrTransport.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}

	var fe *FaultError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", method, err)
	}
	if m := faultRx.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return &FaultError{Method: method, Code: code, Message: m[2]}
	}

	return fmt.Errorf("%s: %w: %w", method, ErrTransport, err)
}

// IsFault reports whether err carries a remote fault.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}
