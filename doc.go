// Package ar24 is a client for the AR24 registered-email API.
//
// A Client talks to one environment (demo or prod). Senders are registered
// with AddUser, which resolves their vendor user id, or configured once
// through Config.Sender and registered on first use. Emails are sent either
// as simple registered emails or as eIDAS-qualified emails, the latter
// authenticated with a TOTP code derived from the sender's OTP secret.
//
//	cfg, err := ar24.LoadConfig()
//	if err != nil {
//		return err
//	}
//	client, err := ar24.New(cfg)
//	if err != nil {
//		return err
//	}
//
//	recipient, err := ar24.NewRecipient("Jane", "Doe", "jane@example.com", "", "")
//	if err != nil {
//		return err
//	}
//	resp, err := client.SendSimpleRegisteredEmail(ctx, client.DefaultSender(), ar24.NewEmail(recipient, "Hello"))
//
// AR24 returns dates as French local wall-clock times without a zone. They
// are read in time.Local unless WithLocation says otherwise, so processes
// not running on Paris time should pass it explicitly:
//
//	paris, err := time.LoadLocation("Europe/Paris")
//	if err != nil {
//		return err
//	}
//	client, err := ar24.New(cfg, ar24.WithLocation(paris))
//
// The location also decides when a cached OTP hash counts as expired.
//
// Optional response fields that AR24 fills with an unexpected value are
// reported as absent and logged at warn level, so a send that went through
// is never turned into an error by its echo.
package ar24
