package render

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/dhcgn/archive-extract/model"
)

const (
	icsTime   = "20060102T150405Z"
	icsProdID = "-//archive-extract//EN"
)

var icsEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
	",", `\,`,
	";", `\;`,
)

// Event writes a as a single VEVENT calendar with CRLF line endings.
func Event(w io.Writer, a model.Appointment) error {
	start := a.Start
	end := a.End
	if end.IsZero() || end.Before(start) {
		end = start
	}

	bw := bufio.NewWriter(w)
	line := func(s string) {
		bw.WriteString(s)
		bw.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + icsProdID)
	line("BEGIN:VEVENT")
	line("UID:" + icsEscaper.Replace(a.ID) + "@" + messageIDHost)
	line("DTSTAMP:" + FormatICSTime(start))
	line("DTSTART:" + FormatICSTime(start))
	line("DTEND:" + FormatICSTime(end))
	line("SUMMARY:" + icsEscaper.Replace(a.Subject))
	if a.Description != "" {
		line("DESCRIPTION:" + icsEscaper.Replace(a.Description))
	}
	if a.Location != "" {
		line("LOCATION:" + icsEscaper.Replace(a.Location))
	}
	line("END:VEVENT")
	line("END:VCALENDAR")
	return bw.Flush()
}

// FormatICSTime formats t as compact UTC.
func FormatICSTime(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format(icsTime)
}
