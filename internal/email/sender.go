// Package email delivers outbound mail. The rest of the system consumes it
// through the Sender interface only; delivery failures surface as a single
// error with no transport detail.
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(to, subject, html string) error
}

// SMTPSender sends mail over implicit TLS (port 465 style relays).
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
}

// NewSMTPSender returns a Sender for the given relay. username doubles as the
// From address.
func NewSMTPSender(host, port, username, password string) *SMTPSender {
	return &SMTPSender{host: host, port: port, username: username, password: password}
}

// Send delivers one HTML message to a single recipient.
func (e *SMTPSender) Send(to, subject, html string) error {
	from := e.username
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			html,
	)

	serverAddr := e.host + ":" + e.port
	tlsConfig := &tls.Config{ServerName: e.host}

	conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return err
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", e.username, e.password, e.host)
	if err := client.Auth(auth); err != nil {
		return err
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
