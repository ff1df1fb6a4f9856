package notify

import (
	"context"
	"errors"
	"testing"
)

func TestSMTPMailerClassifiesPermanentFailures(t *testing.T) {
	cases := []struct {
		name   string
		mailer *SMTPMailer
		m      Mail
	}{
		{"no server", NewSMTPMailer("", "587", "pw"), Mail{From: "a@b.org", To: "c@d.org"}},
		{"bad from", NewSMTPMailer("smtp.example.org", "587", "pw"), Mail{From: "not an address", To: "c@d.org"}},
		{"bad recipient", NewSMTPMailer("smtp.example.org", "587", "pw"), Mail{From: "a@b.org", To: ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.mailer.Send(context.Background(), tc.m)
			if !errors.Is(err, ErrPermanent) {
				t.Fatalf("err = %v, want ErrPermanent", err)
			}
		})
	}
}
