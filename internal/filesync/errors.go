package filesync

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Operation names, as shown to the user in failure notices.
const (
	OpList     = "fetch files"
	OpDetail   = "fetch file details"
	OpUpdate   = "update file"
	OpRemove   = "delete file"
	OpDownload = "download file"
	OpIngest   = "upload file"
	OpGenerate = "generate report"
)

// RemoteError is a non-2xx response from the persistence service. Message
// is the server's {"error": ...} text when one was sent.
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func remoteError(op string, status int, body []byte) *RemoteError {
	msg := fmt.Sprintf("HTTP error, status %d", status)
	if gjson.ValidBytes(body) {
		if v := gjson.GetBytes(body, "error"); v.Type == gjson.String && v.Str != "" {
			msg = v.Str
		}
	}
	return &RemoteError{Op: op, Status: status, Message: msg}
}
