package pst

import (
	"errors"
	"testing"

	"github.com/dhcgn/archive-extract/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		class string
		want  Kind
	}{
		{"IPM.Note", KindMail},
		{"IPM.Contact", KindContact},
		{"ipm.contact.custom", KindContact},
		{"IPM.Appointment", KindAppointment},
		{"IPM.Task", KindTask},
		{"IPM.TaskRequest", KindTask},
		{"IPM.DistList", KindMail},
		{"", KindMail},
	}

	for _, tt := range tests {
		if got := Classify(tt.class); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}

type stubItem struct {
	class    string
	msgCalls int
	err      error
}

func (s *stubItem) Class() string { return s.class }

func (s *stubItem) Message() (model.Message, error) {
	s.msgCalls++
	return model.Message{ID: "m1"}, s.err
}

func (s *stubItem) Contact() (model.Contact, error) {
	return model.Contact{ID: "c1"}, s.err
}

func (s *stubItem) Appointment() (model.Appointment, error) {
	return model.Appointment{ID: "a1"}, s.err
}

func TestResolve(t *testing.T) {
	tests := []struct {
		class  string
		kind   Kind
		wantID string
	}{
		{"IPM.Note", KindMail, "m1"},
		{"IPM.Contact", KindContact, "c1"},
		{"IPM.Appointment", KindAppointment, "a1"},
		{"IPM.Task", KindTask, "a1"},
	}

	for _, tt := range tests {
		item := &stubItem{class: tt.class}
		entry, err := Resolve(item)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.class, err)
		}
		if entry.Kind != tt.kind {
			t.Errorf("Resolve(%q) kind = %v, want %v", tt.class, entry.Kind, tt.kind)
		}
		if entry.ID() != tt.wantID {
			t.Errorf("Resolve(%q) id = %q, want %q", tt.class, entry.ID(), tt.wantID)
		}
		if tt.kind != KindMail && item.msgCalls != 0 {
			t.Errorf("Resolve(%q) read message fields of a non-mail item", tt.class)
		}
	}
}

func TestResolve_Error(t *testing.T) {
	boom := errors.New("corrupt node")
	_, err := Resolve(&stubItem{class: "IPM.Note", err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("Resolve() error = %v, want %v", err, boom)
	}
}
