package binding

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sixpeteunder/orientdb-odm/models"
	"github.com/sixpeteunder/orientdb-odm/protocol"
)

// ==================== ERROR CLASSIFICATION & BACKOFF ====================

// Exception names OrientDB reports when it rejects a command.
var queryExceptions = [][]byte{
	[]byte("OCommandSQLParsingException"),
	[]byte("OQueryParsingException"),
	[]byte("OCommandExecutionException"),
	[]byte("OValidationException"),
	[]byte("OSchemaException"),
	[]byte("ORecordNotFoundException"),
	[]byte("OConcurrentModificationException"),
	[]byte("ODatabaseException: Class"),
}

// classify turns an HTTP status into an error, nil for success and 404.
func classify(resp *Response) error {
	switch {
	case resp.Status >= 200 && resp.Status < 300, resp.Status == fiber.StatusNotFound:
		return nil
	case resp.Status == fiber.StatusUnauthorized, resp.Status == fiber.StatusForbidden:
		return &StatusError{Status: resp.Status, Body: string(resp.Body), RequestID: resp.RequestID, class: errAuth}
	case resp.Status == fiber.StatusBadRequest, resp.Status == fiber.StatusConflict:
		return &StatusError{Status: resp.Status, Body: string(resp.Body), RequestID: resp.RequestID, class: models.ErrInvalidQuery}
	case resp.Status >= 500 && isQueryRejection(resp.Body):
		return &StatusError{Status: resp.Status, Body: string(resp.Body), RequestID: resp.RequestID, class: models.ErrInvalidQuery}
	default:
		return &StatusError{Status: resp.Status, Body: string(resp.Body), RequestID: resp.RequestID, class: protocol.ErrTransport}
	}
}

// errAuth is a transport failure that retrying cannot fix.
var errAuth = fmt.Errorf("%w: authentication rejected", protocol.ErrTransport)

func isQueryRejection(body []byte) bool {
	for _, name := range queryExceptions {
		if bytes.Contains(body, name) {
			return true
		}
	}
	return false
}

// isRetryable reports whether a failed attempt may succeed when repeated.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errAuth) || errors.Is(err, models.ErrInvalidQuery) {
		return false
	}
	return errors.Is(err, protocol.ErrTransport)
}

// backoffFor grows linearly with the attempt number.
func backoffFor(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}
