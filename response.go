package ar24

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/connected-company/ar24-go/internal/transport"
)

// DateLayout is the format of every date returned by AR24.
const DateLayout = "2006-01-02 15:04:05"

const zeroDate = "0000-00-00 00:00:00"

// StatusResponse carries the envelope status shared by every response.
type StatusResponse struct {
	Status string
}

// AuthenticateResponse is the result of an OTP authentication.
type AuthenticateResponse struct {
	StatusResponse
	Hash           *string
	ExpirationDate *time.Time
}

// AttachmentUploadedResponse is the result of an attachment upload.
type AttachmentUploadedResponse struct {
	StatusResponse
	ID *string
}

// AttachmentResponse describes an attachment of a sent email.
type AttachmentResponse struct {
	ID  *string
	URL *string
}

// RecipientResponse is the recipient echoed back with an email.
type RecipientResponse struct {
	Firstname *string
	Lastname  *string
	Email     *string
	Company   *string
	Reference *string
}

// Status derives the recipient status from the echoed company.
func (r RecipientResponse) Status() RecipientStatus {
	if r.Company == nil {
		return StatusIndividual
	}
	return statusFor(*r.Company)
}

// EmailResponse describes a registered email and its delivery state.
type EmailResponse struct {
	StatusResponse
	ID            *int64
	EmailStatus   *string
	Recipient     RecipientResponse
	CaseReference *string
	// Date is the creation date returned when the email is sent.
	Date        *time.Time
	DateSent    *time.Time
	DateOpened  *time.Time
	DateRefused *time.Time
	DateExpired *time.Time
	SendFail    *bool

	ProofDepositURL *string
	ProofSendURL    *string
	ProofReceiptURL *string

	Attachments []AttachmentResponse
}

type userPayload struct {
	ID looseString `json:"id"`
}

type authenticatePayload struct {
	Hash           looseString `json:"hash"`
	ExpirationDate looseString `json:"expiration_date"`
}

type attachmentUploadedPayload struct {
	FileID looseString `json:"file_id"`
}

type attachmentPayload struct {
	ID          looseString `json:"id"`
	DownloadURL looseString `json:"download_url"`
}

type emailPayload struct {
	ID             looseInt        `json:"id"`
	Status         looseString     `json:"status"`
	ToFirstname    looseString     `json:"to_firstname"`
	ToLastname     looseString     `json:"to_lastname"`
	ToEmail        looseString     `json:"to_email"`
	ToCompany      looseString     `json:"to_company"`
	RefClient      looseString     `json:"ref_client"`
	RefDossier     looseString     `json:"ref_dossier"`
	Date           looseString     `json:"date"`
	TsEvDate       looseString     `json:"ts_ev_date"`
	ViewDate       looseString     `json:"view_date"`
	RefusedDate    looseString     `json:"refused_date"`
	NegligenceDate looseString     `json:"negligence_date"`
	SendFail       looseBool       `json:"send_fail"`
	ProofDpURL     looseString     `json:"proof_dp_url"`
	ProofEvURL     looseString     `json:"proof_ev_url"`
	ProofArURL     looseString     `json:"proof_ar_url"`
	Attachments    json.RawMessage `json:"attachments_details"`
}

// decoder turns result payloads into responses. Optional fields that do not
// parse are dropped and logged at warn level.
type decoder struct {
	loc    *time.Location
	logger *slog.Logger
}

func decodeUserID(res *transport.Result) (string, error) {
	var p userPayload
	if err := unmarshalPayload(res.Payload, &p); err != nil {
		return "", err
	}
	if !p.ID.valid || p.ID.value == "" {
		return "", fmt.Errorf("%w: missing user id", ErrUnexpectedResponse)
	}
	return p.ID.value, nil
}

func (d decoder) authenticate(ctx context.Context, res *transport.Result) (*AuthenticateResponse, error) {
	var p authenticatePayload
	if err := unmarshalPayload(res.Payload, &p); err != nil {
		return nil, err
	}

	d.dropMalformed(ctx, []namedField{{"hash", p.Hash}})

	return &AuthenticateResponse{
		StatusResponse: StatusResponse{Status: res.Status},
		Hash:           p.Hash.ptr(),
		ExpirationDate: d.date(ctx, "expiration_date", p.ExpirationDate),
	}, nil
}

func (d decoder) attachmentUploaded(ctx context.Context, res *transport.Result) (*AttachmentUploadedResponse, error) {
	var p attachmentUploadedPayload
	if err := unmarshalPayload(res.Payload, &p); err != nil {
		return nil, err
	}

	d.dropMalformed(ctx, []namedField{{"file_id", p.FileID}})

	return &AttachmentUploadedResponse{
		StatusResponse: StatusResponse{Status: res.Status},
		ID:             p.FileID.ptr(),
	}, nil
}

func (d decoder) email(ctx context.Context, res *transport.Result) (*EmailResponse, error) {
	return d.emailPayload(ctx, res.Status, res.Payload)
}

// emailList accepts the list either as a JSON array or as an object keyed by
// email id. Object entries keep the order they are sent in.
func (d decoder) emailList(ctx context.Context, res *transport.Result) ([]*EmailResponse, error) {
	raw := bytes.TrimSpace(res.Payload)
	if isNull(raw) {
		return []*EmailResponse{}, nil
	}

	var items []json.RawMessage
	if raw[0] == '{' {
		var err error
		if items, err = objectValues(raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	emails := make([]*EmailResponse, 0, len(items))
	for i, item := range items {
		e, err := d.emailPayload(ctx, res.Status, item)
		if err != nil {
			return nil, fmt.Errorf("email %d: %w", i, err)
		}
		emails = append(emails, e)
	}
	return emails, nil
}

// objectValues returns the values of a JSON object in document order.
func objectValues(raw []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var values []json.RawMessage
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return values, nil
}

func (d decoder) emailPayload(ctx context.Context, status string, raw json.RawMessage) (*EmailResponse, error) {
	var p emailPayload
	if err := unmarshalPayload(raw, &p); err != nil {
		return nil, err
	}

	d.dropMalformed(ctx, []namedField{
		{"id", p.ID},
		{"status", p.Status},
		{"to_firstname", p.ToFirstname},
		{"to_lastname", p.ToLastname},
		{"to_email", p.ToEmail},
		{"to_company", p.ToCompany},
		{"ref_client", p.RefClient},
		{"ref_dossier", p.RefDossier},
		{"send_fail", p.SendFail},
		{"proof_dp_url", p.ProofDpURL},
		{"proof_ev_url", p.ProofEvURL},
		{"proof_ar_url", p.ProofArURL},
	})

	resp := &EmailResponse{
		StatusResponse: StatusResponse{Status: status},
		ID:             p.ID.ptr(),
		EmailStatus:    p.Status.ptr(),
		Recipient: RecipientResponse{
			Firstname: p.ToFirstname.ptr(),
			Lastname:  p.ToLastname.ptr(),
			Email:     p.ToEmail.ptr(),
			Company:   p.ToCompany.ptr(),
			Reference: p.RefClient.ptr(),
		},
		CaseReference:   p.RefDossier.ptr(),
		Date:            d.date(ctx, "date", p.Date),
		DateSent:        d.date(ctx, "ts_ev_date", p.TsEvDate),
		DateOpened:      d.date(ctx, "view_date", p.ViewDate),
		DateRefused:     d.date(ctx, "refused_date", p.RefusedDate),
		DateExpired:     d.date(ctx, "negligence_date", p.NegligenceDate),
		SendFail:        p.SendFail.ptr(),
		ProofDepositURL: p.ProofDpURL.ptr(),
		ProofSendURL:    p.ProofEvURL.ptr(),
		ProofReceiptURL: p.ProofArURL.ptr(),
	}

	resp.Attachments = d.attachments(ctx, p.Attachments)

	return resp, nil
}

func (d decoder) attachments(ctx context.Context, raw json.RawMessage) []AttachmentResponse {
	if isNull(bytes.TrimSpace(raw)) {
		return nil
	}

	var items []attachmentPayload
	if err := json.Unmarshal(raw, &items); err != nil {
		d.drop(ctx, "attachments_details", string(raw))
		return nil
	}

	var out []AttachmentResponse
	for _, a := range items {
		d.dropMalformed(ctx, []namedField{
			{"attachments_details.id", a.ID},
			{"attachments_details.download_url", a.DownloadURL},
		})
		out = append(out, AttachmentResponse{
			ID:  a.ID.ptr(),
			URL: a.DownloadURL.ptr(),
		})
	}
	return out
}

// date parses an optional date field. A value that is not an AR24 date is
// dropped.
func (d decoder) date(ctx context.Context, name string, s looseString) *time.Time {
	if raw, ok := s.malformed(); ok {
		d.drop(ctx, name, raw)
		return nil
	}

	t, err := parseDate(s, d.loc)
	if err != nil {
		d.drop(ctx, name, s.value)
		return nil
	}
	return t
}

type namedField struct {
	name  string
	field interface{ malformed() (string, bool) }
}

func (d decoder) dropMalformed(ctx context.Context, fields []namedField) {
	for _, f := range fields {
		if raw, ok := f.field.malformed(); ok {
			d.drop(ctx, f.name, raw)
		}
	}
}

func (d decoder) drop(ctx context.Context, name, raw string) {
	d.logger.WarnContext(ctx, "ignored malformed ar24 field", "field", name, "value", raw)
}

// unmarshalPayload decodes a result payload. A missing or null payload
// leaves v untouched.
func unmarshalPayload(raw json.RawMessage, v any) error {
	if isNull(bytes.TrimSpace(raw)) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

func isNull(raw []byte) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// parseDate parses an AR24 date in loc. Empty and zero dates are absent.
func parseDate(s looseString, loc *time.Location) (*time.Time, error) {
	v := strings.TrimSpace(s.value)
	if !s.valid || v == "" || v == zeroDate {
		return nil, nil
	}

	t, err := time.ParseInLocation(DateLayout, v, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrUnexpectedResponse, v)
	}
	return &t, nil
}

// looseString accepts a JSON string or number. Any other value is kept as
// malformed and reads as absent.
type looseString struct {
	value string
	valid bool
	bad   string
}

func (s *looseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s.value); err != nil {
			return err
		}
		s.valid = true
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		s.bad = string(b)
		return nil
	}
	s.value = n.String()
	s.valid = true
	return nil
}

func (s looseString) ptr() *string {
	if !s.valid {
		return nil
	}
	v := s.value
	return &v
}

func (s looseString) malformed() (string, bool) {
	return s.bad, s.bad != ""
}

// looseInt accepts a JSON number or a numeric string. An empty string is
// absent.
type looseInt struct {
	value int64
	valid bool
	bad   string
}

func (i *looseInt) UnmarshalJSON(b []byte) error {
	var s looseString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if !s.valid || s.value == "" {
		i.bad = s.bad
		return nil
	}

	n, err := strconv.ParseInt(s.value, 10, 64)
	if err != nil {
		i.bad = string(b)
		return nil
	}
	i.value = n
	i.valid = true
	return nil
}

func (i looseInt) ptr() *int64 {
	if !i.valid {
		return nil
	}
	v := i.value
	return &v
}

func (i looseInt) malformed() (string, bool) {
	return i.bad, i.bad != ""
}

// looseBool accepts a JSON boolean, 0 or 1, and their string forms.
type looseBool struct {
	value bool
	valid bool
	bad   string
}

func (v *looseBool) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null", `""`:
	case "true", "1", `"1"`, `"true"`:
		v.value, v.valid = true, true
	case "false", "0", `"0"`, `"false"`:
		v.value, v.valid = false, true
	default:
		v.bad = string(b)
	}
	return nil
}

func (v looseBool) ptr() *bool {
	if !v.valid {
		return nil
	}
	b := v.value
	return &b
}

func (v looseBool) malformed() (string, bool) {
	return v.bad, v.bad != ""
}
