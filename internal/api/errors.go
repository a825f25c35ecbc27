package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindNetwork means the request never produced a response.
	KindNetwork Kind = iota + 1
	KindClient
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a failed call. Message holds the server's error payload, either
// the "error" field of a JSON object or a bare string body.
type Error struct {
	Status  int
	Message string
	Body    []byte
	Err     error
}

func (e *Error) Kind() Kind {
	switch {
	case e.Status == 0:
		return KindNetwork
	case e.Status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("network failure: %v", e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func networkError(err error) *Error {
	return &Error{Err: err}
}

func parseError(status int, body []byte) *Error {
	e := &Error{Status: status, Body: body}
	trimmed := bytes.TrimSpace(body)

	var obj struct {
		Error string `json:"error"`
	}
	var str string
	switch {
	case json.Unmarshal(trimmed, &obj) == nil && obj.Error != "":
		e.Message = obj.Error
	case json.Unmarshal(trimmed, &str) == nil && str != "":
		e.Message = str
	case len(trimmed) > 0 && trimmed[0] != '{':
		e.Message = string(trimmed)
	default:
		e.Message = http.StatusText(status)
	}
	return e
}
