package ar24

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/connected-company/ar24-go/internal/totp"
)

// RecipientStatus is the legal status of a recipient, derived from whether
// a company is set.
type RecipientStatus string

const (
	StatusIndividual   RecipientStatus = "individual"
	StatusProfessional RecipientStatus = "professional"
)

// wireValue returns the dest_statut value AR24 expects.
func (s RecipientStatus) wireValue() string {
	if s == StatusProfessional {
		return "professionnel"
	}
	return "particulier"
}

func statusFor(company string) RecipientStatus {
	if company == "" {
		return StatusIndividual
	}
	return StatusProfessional
}

// Sender is an AR24 account acting on behalf of the caller.
type Sender struct {
	email     string
	token     string
	otpSecret string
}

// NewSender validates and returns a Sender. otpSecret is the base32 TOTP
// secret required for eIDAS sends; it may be empty.
func NewSender(email, token, otpSecret string) (*Sender, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrEmptyToken
	}
	if otpSecret != "" {
		if err := totp.ValidateSecret(otpSecret); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOTPSecret, err)
		}
	}

	return &Sender{email: email, token: token, otpSecret: otpSecret}, nil
}

// Email returns the sender's AR24 account email.
func (s *Sender) Email() string { return s.email }

// Token returns the API token.
func (s *Sender) Token() string { return s.token }

// OTPSecret returns the base32 TOTP secret, or an empty string.
func (s *Sender) OTPSecret() string { return s.otpSecret }

// HasOTPSecret reports whether the sender can authenticate eIDAS sends.
func (s *Sender) HasOTPSecret() bool { return s.otpSecret != "" }

// key identifies the sender's session.
func (s *Sender) key() string {
	return strings.ToLower(s.email)
}

// Recipient is the addressee of a registered email.
type Recipient struct {
	firstname string
	lastname  string
	email     string
	company   string
	reference string
}

// NewRecipient validates and returns a Recipient. company and reference are
// optional.
func NewRecipient(firstname, lastname, email, company, reference string) (*Recipient, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	return &Recipient{
		firstname: firstname,
		lastname:  lastname,
		email:     email,
		company:   company,
		reference: reference,
	}, nil
}

// Firstname returns the recipient's first name.
func (r *Recipient) Firstname() string { return r.firstname }

// Lastname returns the recipient's last name.
func (r *Recipient) Lastname() string { return r.lastname }

// Email returns the recipient's email address.
func (r *Recipient) Email() string { return r.email }

// Company returns the recipient's company, or an empty string.
func (r *Recipient) Company() string { return r.company }

// Reference returns the client reference sent as ref_client.
func (r *Recipient) Reference() string { return r.reference }

// Status is StatusProfessional when a company is set, else StatusIndividual.
func (r *Recipient) Status() RecipientStatus {
	return statusFor(r.company)
}

// Email is a registered email to send. Attachments are appended with
// AddAttachment before the send.
type Email struct {
	recipient        *Recipient
	content          string
	caseReference    string
	billingReference string
	attachments      []*Attachment
}

// EmailOption configures optional Email fields.
type EmailOption func(*Email)

// WithCaseReference sets the case reference (ref_dossier).
func WithCaseReference(ref string) EmailOption {
	return func(e *Email) { e.caseReference = ref }
}

// WithBillingReference sets the billing reference (ref_facturation).
func WithBillingReference(ref string) EmailOption {
	return func(e *Email) { e.billingReference = ref }
}

// NewEmail returns an Email addressed to recipient.
func NewEmail(recipient *Recipient, content string, opts ...EmailOption) *Email {
	e := &Email{recipient: recipient, content: content}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddAttachment appends a to the email and returns the email.
func (e *Email) AddAttachment(a *Attachment) *Email {
	e.attachments = append(e.attachments, a)
	return e
}

// Recipient returns the email's recipient.
func (e *Email) Recipient() *Recipient { return e.recipient }

// Content returns the email body.
func (e *Email) Content() string { return e.content }

// CaseReference returns the case reference sent as ref_dossier.
func (e *Email) CaseReference() string { return e.caseReference }

// BillingReference returns the billing reference sent as ref_facturation.
func (e *Email) BillingReference() string { return e.billingReference }

// Attachments returns the attachments in insertion order.
func (e *Email) Attachments() []*Attachment {
	out := make([]*Attachment, len(e.attachments))
	copy(out, e.attachments)
	return out
}

// Attachment is a local file sent along with an email. Its ID is set once
// the file has been uploaded.
type Attachment struct {
	path string

	mu sync.RWMutex
	id string
}

// NewAttachment returns an Attachment for the regular file at path.
func NewAttachment(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAttachmentNotFound, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrAttachmentNotFound, path)
	}

	return &Attachment{path: path}, nil
}

// Path returns the local path of the file.
func (a *Attachment) Path() string { return a.path }

// ID returns the AR24 file id, or an empty string before upload.
func (a *Attachment) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id
}

func (a *Attachment) setID(id string) {
	a.mu.Lock()
	a.id = id
	a.mu.Unlock()
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}
