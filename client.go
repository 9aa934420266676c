package ar24

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/connected-company/ar24-go/internal/logger"
	"github.com/connected-company/ar24-go/internal/totp"
	"github.com/connected-company/ar24-go/internal/transport"
)

const (
	endpointUser         = "user/"
	endpointAuthOTP      = "user/auth_otp/"
	endpointMail         = "mail/"
	endpointAttachment   = "attachment/"
	endpointUserMailList = "user/mail"
)

// Client calls the AR24 API. It is safe for concurrent use.
type Client struct {
	transport  *transport.Transport
	httpClient *http.Client
	logger     *slog.Logger
	store      HashStore
	now        func() time.Time
	loc        *time.Location
	decoder    decoder

	mu       sync.RWMutex
	sessions map[string]*Session

	defaultSender *Sender
	registration  singleflight.Group
}

type userQuery struct {
	Email string `url:"email"`
}

type mailQuery struct {
	ID string `url:"id"`
}

type mailListQuery struct {
	Mail []string `url:"mail,brackets"`
}

// New validates cfg and returns a Client for its environment.
func New(cfg *Config, opts ...Option) (*Client, error) {
	return newWithOverrides(cfg, "", nil, opts...)
}

// newWithOverrides creates a Client with a custom base URI and HTTP client,
// used for testing.
func newWithOverrides(cfg *Config, baseURI string, httpClient *http.Client, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfiguration)
	}

	conf := *cfg
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if baseURI == "" {
		baseURI = conf.BaseURI()
	}

	c := &Client{
		httpClient: httpClient,
		now:        time.Now,
		loc:        time.Local,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: conf.Timeout}
	}
	if c.logger == nil {
		c.logger = defaultLogger(conf.Logging)
	}
	c.decoder = decoder{loc: c.loc, logger: c.logger}

	if conf.Sender.Email != "" || conf.Sender.Token != "" {
		sender, err := NewSender(conf.Sender.Email, conf.Sender.Token, conf.Sender.OTPSecret)
		if err != nil {
			return nil, err
		}
		c.defaultSender = sender
	}

	t, err := transport.New(baseURI, conf.Webhook, c.httpClient, c.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	c.transport = t

	return c, nil
}

func defaultLogger(cfg LoggingConfig) *slog.Logger {
	if cfg.Level == "" {
		return slog.Default()
	}
	return logger.New(cfg.Level, os.Stderr)
}

// DefaultSender returns the sender configured in Config.Sender, or nil.
func (c *Client) DefaultSender() *Sender {
	return c.defaultSender
}

// AddUser resolves the AR24 user id of sender and registers its session,
// replacing any previous session for the same email.
func (c *Client) AddUser(ctx context.Context, sender *Sender) (*Session, error) {
	if err := checkSender(sender); err != nil {
		return nil, err
	}

	res, err := c.transport.Get(ctx, endpointUser, transport.Credentials{Token: sender.token}, userQuery{Email: sender.email})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate user: %w", err)
	}

	userID, err := decodeUserID(res)
	if err != nil {
		return nil, err
	}

	session := newSession(sender, userID)

	c.mu.Lock()
	c.sessions[sender.key()] = session
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "ar24 user registered", "user_id", userID)

	return session, nil
}

// Session returns the registered session of sender.
func (c *Client) Session(sender *Sender) (*Session, error) {
	if err := checkSender(sender); err != nil {
		return nil, err
	}
	if s, ok := c.lookup(sender); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnregisteredUser, sender.email)
}

// UserID returns the AR24 user id of a registered sender.
func (c *Client) UserID(sender *Sender) (string, error) {
	s, err := c.Session(sender)
	if err != nil {
		return "", err
	}
	return s.userID, nil
}

// RefreshOTPHash authenticates sender with a fresh OTP code unless its
// cached hash is still valid, in which case it returns nil without any
// request.
func (c *Client) RefreshOTPHash(ctx context.Context, sender *Sender) (*AuthenticateResponse, error) {
	if err := checkSender(sender); err != nil {
		return nil, err
	}
	if !sender.HasOTPSecret() {
		return nil, ErrMissingOTPSecret
	}

	s, err := c.session(ctx, sender)
	if err != nil {
		return nil, err
	}

	return c.refreshOTPHash(ctx, s, sender.otpSecret)
}

// SendSimpleRegisteredEmail uploads the attachments of email that have no
// id yet, then sends it as a simple registered email.
func (c *Client) SendSimpleRegisteredEmail(ctx context.Context, sender *Sender, email *Email) (*EmailResponse, error) {
	return c.send(ctx, sender, email, false)
}

// SendEidasEmail sends email as an eIDAS-qualified registered email. The
// sender must have an OTP secret.
func (c *Client) SendEidasEmail(ctx context.Context, sender *Sender, email *Email) (*EmailResponse, error) {
	return c.send(ctx, sender, email, true)
}

// UploadAttachment uploads the file of a and records the returned file id
// on it.
func (c *Client) UploadAttachment(ctx context.Context, sender *Sender, a *Attachment) (*AttachmentUploadedResponse, error) {
	if err := checkSender(sender); err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: nil attachment", ErrConfiguration)
	}

	s, err := c.session(ctx, sender)
	if err != nil {
		return nil, err
	}

	return c.upload(ctx, s, a)
}

// EmailInfo returns the current state of the email with the given id.
func (c *Client) EmailInfo(ctx context.Context, sender *Sender, id string) (*EmailResponse, error) {
	if err := checkSender(sender); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty email id", ErrConfiguration)
	}

	s, err := c.session(ctx, sender)
	if err != nil {
		return nil, err
	}

	res, err := c.transport.Get(ctx, endpointMail, s.credentials(), mailQuery{ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to get email %s: %w", id, err)
	}

	return c.decoder.email(ctx, res)
}

// RegisteredMails returns the registered emails with the given ids.
func (c *Client) RegisteredMails(ctx context.Context, sender *Sender, ids ...string) ([]*EmailResponse, error) {
	if err := checkSender(sender); err != nil {
		return nil, err
	}

	s, err := c.session(ctx, sender)
	if err != nil {
		return nil, err
	}

	res, err := c.transport.Get(ctx, endpointUserMailList, s.credentials(), mailListQuery{Mail: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to list registered mails: %w", err)
	}

	return c.decoder.emailList(ctx, res)
}

func (c *Client) send(ctx context.Context, sender *Sender, email *Email, eidas bool) (*EmailResponse, error) {
	if err := checkSender(sender); err != nil {
		return nil, err
	}
	if email == nil || email.Recipient() == nil {
		return nil, fmt.Errorf("%w: email has no recipient", ErrConfiguration)
	}
	if eidas && !sender.HasOTPSecret() {
		return nil, ErrMissingOTPSecret
	}

	s, err := c.session(ctx, sender)
	if err != nil {
		return nil, err
	}

	if eidas {
		if _, err := c.refreshOTPHash(ctx, s, sender.otpSecret); err != nil {
			return nil, err
		}
	}

	for _, a := range email.Attachments() {
		if a.ID() != "" {
			continue
		}
		if _, err := c.upload(ctx, s, a); err != nil {
			return nil, err
		}
	}

	var code string
	if eidas {
		code, err = totp.Code(sender.otpSecret, c.now())
		if err != nil {
			return nil, err
		}
	}

	fields, err := EncodeEmail(email, code)
	if err != nil {
		return nil, err
	}

	res, err := c.transport.Post(ctx, endpointMail, s.credentials(), fields, "")
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	resp, err := c.decoder.email(ctx, res)
	if err != nil {
		return nil, err
	}

	attrs := []any{"user_id", s.userID, "eidas", eidas, "attachments", len(email.attachments)}
	if resp.ID != nil {
		attrs = append(attrs, "email_id", *resp.ID)
	}
	c.logger.InfoContext(ctx, "ar24 email sent", attrs...)

	return resp, nil
}

func (c *Client) upload(ctx context.Context, s *Session, a *Attachment) (*AttachmentUploadedResponse, error) {
	res, err := c.transport.Post(ctx, endpointAttachment, s.credentials(), nil, a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment %s: %w", a.path, err)
	}

	resp, err := c.decoder.attachmentUploaded(ctx, res)
	if err != nil {
		return nil, err
	}
	if resp.ID == nil || *resp.ID == "" {
		return nil, fmt.Errorf("%w: upload of %s returned no file id", ErrUnexpectedResponse, a.path)
	}

	a.setID(*resp.ID)
	return resp, nil
}

func (c *Client) refreshOTPHash(ctx context.Context, s *Session, otpSecret string) (*AuthenticateResponse, error) {
	return s.refreshIfNeeded(c.now, func() (AuthHash, *AuthenticateResponse, error) {
		if hash, ok := c.loadHash(ctx, s.userID); ok {
			return hash, nil, nil
		}

		code, err := totp.Code(otpSecret, c.now())
		if err != nil {
			return AuthHash{}, nil, err
		}

		res, err := c.transport.Post(ctx, endpointAuthOTP, s.credentials(), []Field{{Name: "otp", Value: code}}, "")
		if err != nil {
			return AuthHash{}, nil, fmt.Errorf("failed to authenticate otp: %w", err)
		}

		resp, err := c.decoder.authenticate(ctx, res)
		if err != nil {
			return AuthHash{}, nil, err
		}

		var hash AuthHash
		if resp.Hash != nil {
			hash.Hash = *resp.Hash
		}
		if resp.ExpirationDate != nil {
			hash.ExpiresAt = *resp.ExpirationDate
		}

		c.saveHash(ctx, s.userID, hash)
		c.logger.DebugContext(ctx, "ar24 otp hash refreshed", "user_id", s.userID, "expires_at", hash.ExpiresAt)

		return hash, resp, nil
	})
}

// loadHash adopts a valid hash from the store. Store failures are logged
// and treated as a miss.
func (c *Client) loadHash(ctx context.Context, userID string) (AuthHash, bool) {
	if c.store == nil {
		return AuthHash{}, false
	}

	hash, err := c.store.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrHashNotFound) {
			c.logger.WarnContext(ctx, "failed to load ar24 auth hash", "user_id", userID, "error", err)
		}
		return AuthHash{}, false
	}

	return hash, hash.Valid(c.now())
}

func (c *Client) saveHash(ctx context.Context, userID string, hash AuthHash) {
	if c.store == nil || !hash.Valid(c.now()) {
		return
	}
	if err := c.store.Save(ctx, userID, hash); err != nil {
		c.logger.WarnContext(ctx, "failed to save ar24 auth hash", "user_id", userID, "error", err)
	}
}

// session returns the session of sender. The default sender is registered
// on first use; concurrent first uses share one registration.
func (c *Client) session(ctx context.Context, sender *Sender) (*Session, error) {
	if s, ok := c.lookup(sender); ok {
		return s, nil
	}

	if c.defaultSender == nil || c.defaultSender.key() != sender.key() {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredUser, sender.email)
	}

	v, err, _ := c.registration.Do(sender.key(), func() (any, error) {
		if s, ok := c.lookup(sender); ok {
			return s, nil
		}
		// Shared by every waiter, so it must outlive the first caller.
		return c.AddUser(context.WithoutCancel(ctx), c.defaultSender)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (c *Client) lookup(sender *Sender) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sender.key()]
	return s, ok
}

func checkSender(sender *Sender) error {
	if sender == nil {
		return fmt.Errorf("%w: nil sender", ErrConfiguration)
	}
	return nil
}
