package model

import (
	"io"
	"time"
)

// Message is a mail item read from a container, ready to be rendered.
type Message struct {
	ID          string
	Subject     string
	From        string
	To          []string
	Body        string
	SubmitTime  time.Time
	Attachments []Attachment
}

// Attachment gives streaming access to the bytes of a message attachment.
type Attachment struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Contact is a contact item from a PST folder.
type Contact struct {
	ID          string
	DisplayName string
	GivenName   string
	Surname     string
	Email       string
	WorkPhone   string
	HomePhone   string
	Company     string
}

// Appointment covers both calendar appointments and tasks.
type Appointment struct {
	ID          string
	Subject     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// RawMessage is an already serialized message file queued for upload.
type RawMessage struct {
	ID         string
	Hash       string
	Path       string
	ReceivedAt time.Time
	Size       int64
	Raw        []byte
}

// Envelope wraps a message alongside an optional error encountered while decoding.
type Envelope struct {
	Message RawMessage
	Err     error
}
