package extract

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	"github.com/dhcgn/archive-extract/model"
	"github.com/dhcgn/archive-extract/pst"
	"github.com/dhcgn/archive-extract/render"
)

// walk writes the contents of folder into dir and recurses into its
// children. It reports whether the folder or any descendant had content.
// The only error it returns is a cancelled context.
func (r *run) walk(ctx context.Context, folder pst.Folder, dir string, depth int) (bool, error) {
	if r.opts.depthExceeded(depth) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.stats.AddFolder()
	r.logger.Debug("visiting folder", "folder", folder.Name(), "items", folder.ContentCount(), "depth", depth)

	if !r.opts.SkipEmpty {
		r.makeDir(dir)
	}

	hasContent := false
	for item, err := range folder.Items() {
		if err != nil {
			r.recordFailure("read item", err, "folder", folder.Name())
			continue
		}
		entry, err := pst.Resolve(item)
		if err != nil {
			r.recordFailure("resolve item", err, "folder", folder.Name())
			continue
		}

		if !hasContent {
			hasContent = true
			r.makeDir(dir)
		}

		switch entry.Kind {
		case pst.KindContact:
			r.writeContact(filepath.Join(dir, contactsDir), entry.Contact)
		case pst.KindAppointment, pst.KindTask:
			r.writeCalendar(filepath.Join(dir, calendarDir), entry.Kind, entry.Appointment)
		default:
			r.writeMessage(dir, entry.Message)
		}
	}

	childContent := false
	for child, err := range folder.Children() {
		if err != nil {
			r.recordFailure("read subfolder", err, "folder", folder.Name())
			continue
		}
		got, err := r.walk(ctx, child, filepath.Join(dir, Sanitize(child.Name())), depth+1)
		if err != nil {
			return false, err
		}
		childContent = childContent || got
	}

	// Keep a path to descendant content even when this folder had none.
	if childContent && !hasContent {
		r.makeDir(dir)
	}

	return hasContent || childContent, nil
}

func (r *run) makeDir(dir string) {
	if err := ensureDir(dir); err != nil {
		r.recordFailure("create folder", err, "path", dir)
	}
}

func (r *run) writeMessage(dir string, m model.Message) {
	id := Sanitize(m.ID)
	path := filepath.Join(dir, r.fileName(id, r.opts.Format.Ext()))

	renderFn := render.Message
	if r.opts.Format == FormatText {
		renderFn = render.Text
	}
	if err := writeFile(path, func(w io.Writer) error { return renderFn(w, m) }); err != nil {
		r.recordFailure("write message", err, "path", path)
	} else {
		r.stats.AddEmail()
	}

	for _, att := range m.Attachments {
		r.writeAttachment(id, att)
	}
}

func (r *run) writeAttachment(messageID string, att model.Attachment) {
	path := filepath.Join(r.attachmentDir, r.fileName(messageID+"_"+Sanitize(att.Name), ""))
	err := writeFile(path, func(w io.Writer) error {
		if att.Open == nil {
			return errors.New("attachment has no content")
		}
		rc, err := att.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = io.Copy(w, rc)
		return err
	})
	if err != nil {
		r.recordFailure("write attachment", err, "path", path)
		return
	}
	r.stats.AddAttachment()
}

func (r *run) writeContact(dir string, c model.Contact) {
	path := filepath.Join(dir, r.fileName(Sanitize(c.ID), ".vcf"))
	if err := writeFile(path, func(w io.Writer) error { return render.Contact(w, c) }); err != nil {
		r.recordFailure("write contact", err, "path", path)
		return
	}
	r.stats.AddContact()
}

func (r *run) writeCalendar(dir string, kind pst.Kind, a model.Appointment) {
	path := filepath.Join(dir, r.fileName(Sanitize(a.ID), ".ics"))
	if err := writeFile(path, func(w io.Writer) error { return render.Event(w, a) }); err != nil {
		r.recordFailure("write calendar item", err, "path", path, "kind", kind)
		return
	}
	if kind == pst.KindTask {
		r.stats.AddTask()
		return
	}
	r.stats.AddAppointment()
}
