// Package imap uploads extracted message files into a mailbox.
package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/archive-extract/model"
	"github.com/dhcgn/archive-extract/runner"
	"github.com/dhcgn/archive-extract/state"
	"github.com/dhcgn/archive-extract/stats"
)

const DefaultMailbox = "INBOX"

var (
	ErrMissingMessageID = errors.New("message id is empty")
	ErrMissingHash      = errors.New("message hash is empty")
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	// MarkSeen appends messages with the \Seen flag.
	MarkSeen bool
	DryRun   bool
}

func (o Options) mailbox() string {
	if o.TargetFolder == "" {
		return DefaultMailbox
	}
	return o.TargetFolder
}

func (o Options) address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

type Uploader struct {
	opts    Options
	runner  *runner.Runner
	tracker state.Tracker
	uploads <-chan model.RawMessage
	logger  *slog.Logger
}

// NewUploader registers an upload stage on r.
func NewUploader(opts Options, r *runner.Runner, logger *slog.Logger) (*Uploader, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = r.Logger()
	}
	u := &Uploader{
		opts:    opts,
		runner:  r,
		tracker: r.Tracker(),
		uploads: r.Uploads(),
		logger:  logger,
	}
	r.AddStage("imap", u.run)
	return u, nil
}

func (u *Uploader) emit(t stats.EventType, msg model.RawMessage, err error) {
	u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: t, MessageID: msg.ID, Err: err, Detail: msg.Path})
}

func (u *Uploader) run(ctx context.Context) error {
	var sess *session
	defer func() {
		if sess != nil {
			sess.close(ctx)
		}
	}()

	for {
		var msg model.RawMessage
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-u.uploads:
			if !ok {
				return nil
			}
			msg = m
		}

		typ, err := u.deliver(ctx, msg, &sess)
		switch {
		case errors.Is(err, ErrMissingMessageID):
			u.emit(stats.EventTypeError, msg, err)
		case err != nil:
			u.emit(stats.EventTypeError, msg, err)
			return err
		default:
			u.emit(typ, msg, nil)
		}
	}
}

// deliver appends msg, dialing on first use, and journals it. In dry-run
// mode only the journal is touched. A missing ID skips the message; every
// other error ends the stage.
func (u *Uploader) deliver(ctx context.Context, msg model.RawMessage, sess **session) (stats.EventType, error) {
	if msg.ID == "" {
		return "", ErrMissingMessageID
	}
	if msg.Hash == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingHash, msg.ID)
	}

	if u.opts.DryRun {
		if err := u.mark(msg); err != nil {
			return "", err
		}
		u.logger.Debug("dry-run upload", "messageID", msg.ID, "path", msg.Path, "target", u.opts.mailbox())
		return stats.EventTypeDryRunUpload, nil
	}

	if *sess == nil {
		s, err := u.dial(ctx)
		if err != nil {
			return "", err
		}
		*sess = s
	}
	if err := (*sess).append(msg, u.opts.MarkSeen); err != nil {
		return "", fmt.Errorf("upload message %s: %w", msg.ID, err)
	}
	if err := u.mark(msg); err != nil {
		return "", err
	}
	u.logger.Debug("uploaded message", "messageID", msg.ID, "path", msg.Path, "target", (*sess).mailbox)
	return stats.EventTypeUploaded, nil
}

func (u *Uploader) mark(msg model.RawMessage) error {
	return u.tracker.Mark(state.Record{
		Hash:      msg.Hash,
		MessageID: msg.ID,
		Path:      msg.Path,
		Mailbox:   u.opts.mailbox(),
	})
}

// session is one authenticated connection with the target mailbox selected
// for appends.
type session struct {
	client    *imapclient.Client
	mailbox   string
	logger    *slog.Logger
	stopClose func() bool
}

func (u *Uploader) dial(ctx context.Context) (*session, error) {
	address := u.opts.address()
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	s := &session{client: client, mailbox: u.opts.mailbox(), logger: u.logger}
	if err := s.ensureMailbox(); err != nil {
		_ = client.Close()
		return nil, err
	}

	s.stopClose = context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username, "target", s.mailbox, "tls", u.opts.UseTLS)
	return s, nil
}

func (s *session) ensureMailbox() error {
	if err := s.client.Create(s.mailbox, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			s.logger.Debug("imap mailbox already exists", "mailbox", s.mailbox)
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", s.mailbox, err)
	}
	s.logger.Info("imap mailbox created", "mailbox", s.mailbox)
	return nil
}

func (s *session) append(msg model.RawMessage, seen bool) error {
	opts := &imapv2.AppendOptions{}
	if !msg.ReceivedAt.IsZero() {
		opts.Time = msg.ReceivedAt
	}
	if seen {
		opts.Flags = []imapv2.Flag{imapv2.FlagSeen}
	}

	cmd := s.client.Append(s.mailbox, int64(len(msg.Raw)), opts)
	if _, err := io.Copy(cmd, bytes.NewReader(msg.Raw)); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("append write: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}

func (s *session) close(ctx context.Context) {
	s.stopClose()
	if ctx.Err() == nil {
		if err := s.client.Logout().Wait(); err != nil {
			s.logger.Warn("imap logout failed", "err", err)
		}
	}
	if err := s.client.Close(); err != nil {
		s.logger.Debug("imap connection closed", "err", err)
	}
}
