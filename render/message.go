// Package render writes extracted items in interchange formats.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dhcgn/archive-extract/model"
)

const (
	defaultSubject = "No Subject"
	messageIDHost  = "extracted"
)

var headerSanitizer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Message writes m as an RFC 5322 style message with CRLF line endings.
func Message(w io.Writer, m model.Message) error {
	bw := bufio.NewWriter(w)
	writeHeaders(bw, "\r\n", messageHeaders(m))
	fmt.Fprintf(bw, "Message-ID: <%s@%s>\r\n", headerValue(m.ID), messageIDHost)
	bw.WriteString("\r\n")
	bw.WriteString(crlf(m.Body))
	return bw.Flush()
}

// Text writes m as a plain text file with LF line endings.
func Text(w io.Writer, m model.Message) error {
	return TextRecord(w, messageHeaders(m), []byte(lf(m.Body)))
}

// Header is the normalized header block of a plain text message.
type Header struct {
	From    string
	To      string
	Subject string
	Date    string
}

// TextRecord writes a normalized header block followed by body unchanged.
func TextRecord(w io.Writer, h Header, body []byte) error {
	bw := bufio.NewWriter(w)
	writeHeaders(bw, "\n", h)
	bw.WriteString("\n")
	bw.Write(body)
	return bw.Flush()
}

func messageHeaders(m model.Message) Header {
	subject := m.Subject
	if strings.TrimSpace(subject) == "" {
		subject = defaultSubject
	}
	return Header{
		From:    m.From,
		To:      strings.Join(m.To, ", "),
		Subject: subject,
		Date:    FormatDate(m.SubmitTime),
	}
}

func writeHeaders(bw *bufio.Writer, eol string, h Header) {
	fmt.Fprintf(bw, "From: %s%s", headerValue(h.From), eol)
	fmt.Fprintf(bw, "To: %s%s", headerValue(h.To), eol)
	fmt.Fprintf(bw, "Subject: %s%s", headerValue(h.Subject), eol)
	fmt.Fprintf(bw, "Date: %s%s", headerValue(h.Date), eol)
}

// FormatDate formats t for a Date header. A zero time is written as the
// Unix epoch so output stays deterministic.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format(time.RFC1123Z)
}

func headerValue(v string) string {
	return headerSanitizer.Replace(v)
}

func lf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func crlf(s string) string {
	return strings.ReplaceAll(lf(s), "\n", "\r\n")
}
