// Package queue defines message payloads exchanged over the message broker
// and the consumer that feeds inbound events to the shareable manager.
package queue

import (
    "errors"
    "strings"
    "time"
)

// Component names the sender in responses so clients can route them.
const Component = "isomer.shareables.manager"

// SchemaShareable is the object schema the manager reacts to on creation.
const SchemaShareable = "shareable"

// ErrMalformed marks payloads that can never be processed; they are
// rejected without requeue.
var ErrMalformed = errors.New("malformed event")

// ReserveEvent asks to reserve a window on a shareable.  Token is the
// sender's access token; Client is where the response goes.
type ReserveEvent struct {
    Client string      `json:"client"`
    Token  string      `json:"token"`
    Data   ReserveData `json:"data"`
}

// ReserveData is the body of a reservation request.  Title and
// Description are optional.
type ReserveData struct {
    UUID        string    `json:"uuid"`
    From        time.Time `json:"from"`
    To          time.Time `json:"to"`
    Title       *string   `json:"title,omitempty"`
    Description *string   `json:"description,omitempty"`
}

// Validate checks that every required field is present.
func (e ReserveEvent) Validate() error {
    var missing []string
    if strings.TrimSpace(e.Client) == "" {
        missing = append(missing, "client")
    }
    if strings.TrimSpace(e.Token) == "" {
        missing = append(missing, "token")
    }
    if strings.TrimSpace(e.Data.UUID) == "" {
        missing = append(missing, "data.uuid")
    }
    if e.Data.From.IsZero() {
        missing = append(missing, "data.from")
    }
    if e.Data.To.IsZero() {
        missing = append(missing, "data.to")
    }
    if len(missing) > 0 {
        return &MissingFieldsError{Fields: missing}
    }
    return nil
}

// MissingFieldsError lists absent required fields.  It matches ErrMalformed.
type MissingFieldsError struct{ Fields []string }

func (e *MissingFieldsError) Error() string {
    return "missing fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Is(target error) bool { return target == ErrMalformed }

// Response is sent back to the client after a reservation attempt.  Data is
// true when the reservation was stored.
type Response struct {
    Component string `json:"component"`
    Action    string `json:"action"`
    Data      bool   `json:"data"`
}

// ReserveResponse builds the reply for a reserve request.
func ReserveResponse(ok bool) Response {
    return Response{Component: Component, Action: "reserve", Data: ok}
}

// ClientMessage wraps a response addressed to one client.
type ClientMessage struct {
    Client   string   `json:"client"`
    Response Response `json:"response"`
}

// ObjectCreatedEvent is published whenever an object is stored.
type ObjectCreatedEvent struct {
    Schema string `json:"schema"`
    UUID   string `json:"uuid"`
}
