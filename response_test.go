package ar24

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/connected-company/ar24-go/internal/logger"
	"github.com/connected-company/ar24-go/internal/transport"
)

func result(t *testing.T, body string) *transport.Result {
	t.Helper()
	res, err := transport.Decode(200, []byte(body))
	require.NoError(t, err)
	return res
}

func testDecoder(loc *time.Location) decoder {
	return decoder{loc: loc, logger: logger.Discard()}
}

// recordingDecoder logs warnings as JSON lines into the returned buffer.
func recordingDecoder() (decoder, *bytes.Buffer) {
	var buf bytes.Buffer
	return decoder{loc: time.UTC, logger: logger.New("warn", &buf)}, &buf
}

func TestDecodeEmail_MinimalPayload(t *testing.T) {
	t.Parallel()

	resp, err := testDecoder(time.UTC).email(context.Background(), result(t, `{"status":"success","result":{"id":42,"status":"sent"}}`))
	require.NoError(t, err)

	require.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.ID)
	require.Equal(t, int64(42), *resp.ID)
	require.NotNil(t, resp.EmailStatus)
	require.Equal(t, "sent", *resp.EmailStatus)

	require.Nil(t, resp.CaseReference)
	require.Nil(t, resp.Date)
	require.Nil(t, resp.DateSent)
	require.Nil(t, resp.DateOpened)
	require.Nil(t, resp.DateRefused)
	require.Nil(t, resp.DateExpired)
	require.Nil(t, resp.SendFail)
	require.Nil(t, resp.ProofDepositURL)
	require.Nil(t, resp.ProofSendURL)
	require.Nil(t, resp.ProofReceiptURL)
	require.Nil(t, resp.Attachments)
	require.Equal(t, RecipientResponse{}, resp.Recipient)
	require.Equal(t, StatusIndividual, resp.Recipient.Status())
}

func TestDecodeEmail_FullPayload(t *testing.T) {
	t.Parallel()

	body := `{"status":"success","result":{
		"id":"1001",
		"status":"AR",
		"to_firstname":"Jane",
		"to_lastname":"Doe",
		"to_email":"jane@example.com",
		"to_company":"Acme",
		"ref_client":"client-9",
		"ref_dossier":"case-1",
		"date":"2023-01-15 10:30:00",
		"ts_ev_date":"2023-01-15 10:31:00",
		"view_date":"2023-01-16 08:00:00",
		"refused_date":null,
		"negligence_date":"0000-00-00 00:00:00",
		"send_fail":"0",
		"proof_dp_url":"https://app.ar24.fr/proof/dp",
		"proof_ev_url":"https://app.ar24.fr/proof/ev",
		"proof_ar_url":"",
		"attachments_details":[
			{"id":"f-1","download_url":"https://app.ar24.fr/dl/f-1"},
			{"id":77}
		]
	}}`

	resp, err := testDecoder(time.UTC).email(context.Background(), result(t, body))
	require.NoError(t, err)

	require.Equal(t, int64(1001), *resp.ID)
	require.Equal(t, "AR", *resp.EmailStatus)
	require.Equal(t, "Jane", *resp.Recipient.Firstname)
	require.Equal(t, "Doe", *resp.Recipient.Lastname)
	require.Equal(t, "jane@example.com", *resp.Recipient.Email)
	require.Equal(t, "client-9", *resp.Recipient.Reference)
	require.Equal(t, StatusProfessional, resp.Recipient.Status())
	require.Equal(t, "case-1", *resp.CaseReference)

	require.Equal(t, time.Date(2023, 1, 15, 10, 30, 0, 0, time.UTC), *resp.Date)
	require.Equal(t, time.Date(2023, 1, 15, 10, 31, 0, 0, time.UTC), *resp.DateSent)
	require.Equal(t, time.Date(2023, 1, 16, 8, 0, 0, 0, time.UTC), *resp.DateOpened)
	require.Nil(t, resp.DateRefused)
	require.Nil(t, resp.DateExpired)

	require.NotNil(t, resp.SendFail)
	require.False(t, *resp.SendFail)
	require.Equal(t, "https://app.ar24.fr/proof/dp", *resp.ProofDepositURL)
	require.Equal(t, "https://app.ar24.fr/proof/ev", *resp.ProofSendURL)
	require.Equal(t, "", *resp.ProofReceiptURL)

	require.Len(t, resp.Attachments, 2)
	require.Equal(t, "f-1", *resp.Attachments[0].ID)
	require.Equal(t, "https://app.ar24.fr/dl/f-1", *resp.Attachments[0].URL)
	require.Equal(t, "77", *resp.Attachments[1].ID)
	require.Nil(t, resp.Attachments[1].URL)
}

func TestDecodeEmail_DateLocation(t *testing.T) {
	t.Parallel()

	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	resp, err := testDecoder(paris).email(context.Background(), result(t, `{"status":"success","result":{"date":"2023-01-15 10:30:00"}}`))
	require.NoError(t, err)
	require.True(t, resp.Date.Equal(time.Date(2023, 1, 15, 9, 30, 0, 0, time.UTC)))
}

func TestDecodeEmail_MalformedDateIsAbsent(t *testing.T) {
	t.Parallel()

	d, logs := recordingDecoder()
	resp, err := d.email(context.Background(), result(t, `{"status":"success","result":{"id":7,"view_date":"15/01/2023","date":false}}`))
	require.NoError(t, err)
	require.Equal(t, int64(7), *resp.ID)
	require.Nil(t, resp.DateOpened)
	require.Nil(t, resp.Date)

	require.Contains(t, logs.String(), `"level":"WARN"`)
	require.Contains(t, logs.String(), `"field":"view_date"`)
	require.Contains(t, logs.String(), `"value":"15/01/2023"`)
	require.Contains(t, logs.String(), `"field":"date"`)
}

func TestDecodeEmail_MalformedOptionalFields(t *testing.T) {
	t.Parallel()

	body := `{"status":"success","result":{
		"id":1001,
		"status":"sent",
		"to_email":"jane@example.com",
		"to_company":false,
		"ref_client":{"code":"x"},
		"send_fail":"yes",
		"attachments_details":false
	}}`

	d, logs := recordingDecoder()
	resp, err := d.email(context.Background(), result(t, body))
	require.NoError(t, err)

	require.Equal(t, int64(1001), *resp.ID)
	require.Equal(t, "sent", *resp.EmailStatus)
	require.Equal(t, "jane@example.com", *resp.Recipient.Email)
	require.Nil(t, resp.Recipient.Company)
	require.Equal(t, StatusIndividual, resp.Recipient.Status())
	require.Nil(t, resp.Recipient.Reference)
	require.Nil(t, resp.SendFail)
	require.Nil(t, resp.Attachments)

	for _, field := range []string{"to_company", "ref_client", "send_fail", "attachments_details"} {
		require.Contains(t, logs.String(), `"field":"`+field+`"`)
	}
	require.NotContains(t, logs.String(), `"field":"to_email"`)
}

func TestDecodeEmail_WellFormedLogsNothing(t *testing.T) {
	t.Parallel()

	d, logs := recordingDecoder()
	_, err := d.email(context.Background(), result(t, `{"status":"success","result":{"id":1,"to_company":null,"date":"","send_fail":0}}`))
	require.NoError(t, err)
	require.Empty(t, logs.String())
}

func TestDecodeEmail_NotAnObject(t *testing.T) {
	t.Parallel()

	_, err := testDecoder(time.UTC).email(context.Background(), result(t, `{"status":"success","result":"sent"}`))
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestDecodeEmail_NullResult(t *testing.T) {
	t.Parallel()

	resp, err := testDecoder(time.UTC).email(context.Background(), result(t, `{"status":"success"}`))
	require.NoError(t, err)
	require.Equal(t, "success", resp.Status)
	require.Nil(t, resp.ID)
}

func TestDecodeEmailList(t *testing.T) {
	t.Parallel()

	t.Run("array", func(t *testing.T) {
		t.Parallel()

		emails, err := testDecoder(time.UTC).emailList(context.Background(), result(t, `{"status":"success","result":[{"id":1},{"id":"2","status":"sent"}]}`))
		require.NoError(t, err)
		require.Len(t, emails, 2)
		require.Equal(t, int64(1), *emails[0].ID)
		require.Equal(t, int64(2), *emails[1].ID)
		require.Equal(t, "sent", *emails[1].EmailStatus)
		require.Equal(t, "success", emails[1].Status)
	})

	t.Run("object keyed by id keeps document order", func(t *testing.T) {
		t.Parallel()

		emails, err := testDecoder(time.UTC).emailList(context.Background(), result(t, `{"status":"success","result":{"11":{"id":11},"10":{"id":10}}}`))
		require.NoError(t, err)
		require.Len(t, emails, 2)
		require.Equal(t, int64(11), *emails[0].ID)
		require.Equal(t, int64(10), *emails[1].ID)
	})

	t.Run("object with numeric keys of different length", func(t *testing.T) {
		t.Parallel()

		emails, err := testDecoder(time.UTC).emailList(context.Background(), result(t, `{"status":"success","result":{"9":{"id":9},"10":{"id":10},"100":{"id":100}}}`))
		require.NoError(t, err)
		require.Len(t, emails, 3)
		require.Equal(t, int64(9), *emails[0].ID)
		require.Equal(t, int64(10), *emails[1].ID)
		require.Equal(t, int64(100), *emails[2].ID)
	})

	t.Run("empty object", func(t *testing.T) {
		t.Parallel()

		emails, err := testDecoder(time.UTC).emailList(context.Background(), result(t, `{"status":"success","result":{}}`))
		require.NoError(t, err)
		require.Empty(t, emails)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		emails, err := testDecoder(time.UTC).emailList(context.Background(), result(t, `{"status":"success","result":null}`))
		require.NoError(t, err)
		require.Empty(t, emails)
	})

	t.Run("malformed id is absent", func(t *testing.T) {
		t.Parallel()

		emails, err := testDecoder(time.UTC).emailList(context.Background(), result(t, `{"status":"success","result":[{"id":"abc","status":"sent"}]}`))
		require.NoError(t, err)
		require.Len(t, emails, 1)
		require.Nil(t, emails[0].ID)
		require.Equal(t, "sent", *emails[0].EmailStatus)
	})

	t.Run("item not an object", func(t *testing.T) {
		t.Parallel()

		_, err := testDecoder(time.UTC).emailList(context.Background(), result(t, `{"status":"success","result":[42]}`))
		require.ErrorIs(t, err, ErrUnexpectedResponse)
	})
}

func TestDecodeAuthenticate(t *testing.T) {
	t.Parallel()

	d := testDecoder(time.UTC)

	resp, err := d.authenticate(context.Background(), result(t, `{"status":"success","result":{"hash":"h-1","expiration_date":"2023-01-15 10:30:00"}}`))
	require.NoError(t, err)
	require.Equal(t, "h-1", *resp.Hash)
	require.Equal(t, time.Date(2023, 1, 15, 10, 30, 0, 0, time.UTC), *resp.ExpirationDate)

	resp, err = d.authenticate(context.Background(), result(t, `{"status":"success","result":{"hash":"h-2","expiration_date":""}}`))
	require.NoError(t, err)
	require.Nil(t, resp.ExpirationDate)

	resp, err = d.authenticate(context.Background(), result(t, `{"status":"success","result":{"hash":"h-3","expiration_date":"tomorrow"}}`))
	require.NoError(t, err)
	require.Equal(t, "h-3", *resp.Hash)
	require.Nil(t, resp.ExpirationDate)
}

func TestDecodeAttachmentUploaded(t *testing.T) {
	t.Parallel()

	d := testDecoder(time.UTC)

	resp, err := d.attachmentUploaded(context.Background(), result(t, `{"status":"success","result":{"file_id":123}}`))
	require.NoError(t, err)
	require.Equal(t, "123", *resp.ID)

	resp, err = d.attachmentUploaded(context.Background(), result(t, `{"status":"success","result":{}}`))
	require.NoError(t, err)
	require.Nil(t, resp.ID)
}

func TestDecodeUserID(t *testing.T) {
	t.Parallel()

	id, err := decodeUserID(result(t, `{"status":"success","result":{"id":12}}`))
	require.NoError(t, err)
	require.Equal(t, "12", id)

	_, err = decodeUserID(result(t, `{"status":"success","result":{}}`))
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    *time.Time
		wantErr bool
	}{
		{name: "value", in: `"2023-01-15 10:30:00"`, want: ptrTime(time.Date(2023, 1, 15, 10, 30, 0, 0, time.UTC))},
		{name: "empty", in: `""`},
		{name: "null", in: `null`},
		{name: "zero date", in: `"0000-00-00 00:00:00"`},
		{name: "iso", in: `"2023-01-15T10:30:00Z"`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var s looseString
			require.NoError(t, json.Unmarshal([]byte(tt.in), &s))

			got, err := parseDate(s, time.UTC)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	got, err := parseDate(looseString{}, time.UTC)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestLooseBool(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{`true`: true, `1`: true, `"1"`: true, `false`: false, `0`: false, `"0"`: false} {
		var b looseBool
		require.NoError(t, json.Unmarshal([]byte(in), &b), in)
		require.Equal(t, want, *b.ptr(), in)
	}

	var b looseBool
	require.NoError(t, json.Unmarshal([]byte(`null`), &b))
	require.Nil(t, b.ptr())
	_, bad := b.malformed()
	require.False(t, bad)

	require.NoError(t, json.Unmarshal([]byte(`"yes"`), &b))
	require.Nil(t, b.ptr())
	raw, bad := b.malformed()
	require.True(t, bad)
	require.Equal(t, `"yes"`, raw)
}

func TestLooseString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    *string
		wantBad bool
	}{
		{in: `"abc"`, want: ptrString("abc")},
		{in: `12`, want: ptrString("12")},
		{in: `1.5`, want: ptrString("1.5")},
		{in: `null`},
		{in: `false`, wantBad: true},
		{in: `{"a":1}`, wantBad: true},
		{in: `[1]`, wantBad: true},
	}

	for _, tt := range tests {
		var s looseString
		require.NoError(t, json.Unmarshal([]byte(tt.in), &s), tt.in)
		require.Equal(t, tt.want, s.ptr(), tt.in)
		raw, bad := s.malformed()
		require.Equal(t, tt.wantBad, bad, tt.in)
		if bad {
			require.Equal(t, tt.in, raw)
		}
	}
}

func TestLooseInt(t *testing.T) {
	t.Parallel()

	var i looseInt
	require.NoError(t, json.Unmarshal([]byte(`"42"`), &i))
	require.Equal(t, int64(42), *i.ptr())

	i = looseInt{}
	require.NoError(t, json.Unmarshal([]byte(`""`), &i))
	require.Nil(t, i.ptr())
	_, bad := i.malformed()
	require.False(t, bad)

	i = looseInt{}
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &i))
	require.Nil(t, i.ptr())
	_, bad = i.malformed()
	require.True(t, bad)

	i = looseInt{}
	require.NoError(t, json.Unmarshal([]byte(`true`), &i))
	_, bad = i.malformed()
	require.True(t, bad)
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrString(s string) *string { return &s }
