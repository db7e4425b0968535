// Package pst describes what the extractor needs from a PST parser. The
// binary format itself is parsed elsewhere; implementations hand out opaque
// folder handles and iterate over their contents on demand.
package pst

import (
	"fmt"
	"iter"
	"strings"

	"github.com/dhcgn/archive-extract/model"
)

// Parser opens a PST container and returns its root folder. A root that
// also implements io.Closer is closed once the walk finishes.
type Parser interface {
	ParseBytes(data []byte) (Folder, error)
	ParseFile(path string) (Folder, error)
}

// Folder is a handle on one folder of the parsed tree.
type Folder interface {
	Name() string
	ContentCount() int
	Items() iter.Seq2[Item, error]
	Children() iter.Seq2[Folder, error]
}

// Item is a raw folder entry. Class is the parser's type marker, for
// example "IPM.Note" or "IPM.Contact".
type Item interface {
	Class() string
	Message() (model.Message, error)
	Contact() (model.Contact, error)
	Appointment() (model.Appointment, error)
}

// Kind is the closed set of item variants the extractor understands.
type Kind int

const (
	KindMail Kind = iota
	KindContact
	KindAppointment
	KindTask
)

func (k Kind) String() string {
	switch k {
	case KindContact:
		return "contact"
	case KindAppointment:
		return "appointment"
	case KindTask:
		return "task"
	default:
		return "mail"
	}
}

// Classify maps an item class marker onto a Kind. Anything that is not a
// contact, appointment or task is treated as mail.
func Classify(class string) Kind {
	c := strings.ToLower(class)
	switch {
	case strings.Contains(c, "contact"):
		return KindContact
	case strings.Contains(c, "appointment"):
		return KindAppointment
	case strings.Contains(c, "task"):
		return KindTask
	default:
		return KindMail
	}
}

// Entry is an item resolved into exactly one variant. Only the field
// matching Kind is populated.
type Entry struct {
	Kind        Kind
	Message     model.Message
	Contact     model.Contact
	Appointment model.Appointment
}

// ID returns the identifier of whichever variant is set.
func (e Entry) ID() string {
	switch e.Kind {
	case KindContact:
		return e.Contact.ID
	case KindAppointment, KindTask:
		return e.Appointment.ID
	default:
		return e.Message.ID
	}
}

// Resolve classifies item once and reads only the fields for its kind.
func Resolve(item Item) (Entry, error) {
	entry := Entry{Kind: Classify(item.Class())}

	var err error
	switch entry.Kind {
	case KindContact:
		entry.Contact, err = item.Contact()
	case KindAppointment, KindTask:
		entry.Appointment, err = item.Appointment()
	default:
		entry.Message, err = item.Message()
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read %s item: %w", entry.Kind, err)
	}
	return entry, nil
}
