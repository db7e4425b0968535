package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// reconcile moves the converter's output tree from src into the output
// layout under dst. Folders are mirrored; files are routed by extension.
// The first file to claim a target name wins.
func (r *run) reconcile(ctx context.Context, src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read staging directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		srcPath := filepath.Join(src, entry.Name())

		if entry.IsDir() {
			r.stats.AddFolder()
			sub := filepath.Join(dst, Sanitize(entry.Name()))
			if err := ensureDir(sub); err != nil {
				r.recordFailure("create folder", err, "path", sub)
				continue
			}
			if err := r.reconcile(ctx, srcPath, sub); err != nil {
				return err
			}
			continue
		}

		target, count := r.route(dst, entry.Name())
		if err := copyFile(srcPath, target); err != nil {
			if errors.Is(err, fs.ErrExist) {
				r.logger.Warn("output file exists, keeping the first copy", "path", target, "source", srcPath)
				continue
			}
			r.recordFailure("copy converted file", err, "source", srcPath, "path", target)
			continue
		}
		count()
	}
	return nil
}

// route returns the target path for a converted file and the counter
// to bump once it is copied.
func (r *run) route(dst, name string) (string, func()) {
	base := r.fileName(Sanitize(strings.TrimSuffix(name, filepath.Ext(name))), "")
	switch strings.ToLower(filepath.Ext(name)) {
	case ".eml":
		return filepath.Join(dst, base+".eml"), r.stats.AddEmail
	case ".vcf":
		return filepath.Join(dst, contactsDir, base+".vcf"), r.stats.AddContact
	case ".ics":
		return filepath.Join(dst, calendarDir, base+".ics"), r.stats.AddAppointment
	default:
		return filepath.Join(r.attachmentDir, r.fileName(Sanitize(name), "")), r.stats.AddAttachment
	}
}
