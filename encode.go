package ar24

import (
	"fmt"

	"github.com/connected-company/ar24-go/internal/transport"
)

// Field is one form field of a request, sent in order.
type Field = transport.Field

// EncodeEmail flattens email into the form fields of a send request. Every
// attachment must already be uploaded. When otpCode is not empty the email
// is flagged as eIDAS and the code is appended.
func EncodeEmail(email *Email, otpCode string) ([]Field, error) {
	if email == nil || email.Recipient() == nil {
		return nil, fmt.Errorf("%w: email has no recipient", ErrConfiguration)
	}
	r := email.Recipient()

	fields := []Field{
		{Name: "to_lastname", Value: r.Lastname()},
		{Name: "to_firstname", Value: r.Firstname()},
		{Name: "to_company", Value: r.Company()},
		{Name: "to_email", Value: r.Email()},
		{Name: "dest_statut", Value: r.Status().wireValue()},
		{Name: "ref_client", Value: r.Reference()},
		{Name: "content", Value: email.Content()},
		{Name: "ref_dossier", Value: email.CaseReference()},
		{Name: "ref_facturation", Value: email.BillingReference()},
	}

	for i, a := range email.Attachments() {
		id := a.ID()
		if id == "" {
			return nil, fmt.Errorf("%w: %s", ErrAttachmentNotUploaded, a.Path())
		}
		fields = append(fields, Field{Name: fmt.Sprintf("attachment[%d]", i), Value: id})
	}

	if otpCode != "" {
		fields = append(fields,
			Field{Name: "eidas", Value: "true"},
			Field{Name: "otp", Value: otpCode},
		)
	}

	return fields, nil
}
