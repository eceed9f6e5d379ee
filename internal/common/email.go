package common

// EmailSender is the delivery contract for transactional mail. Senders are
// expected to be safe for concurrent use.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is one captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail collects messages instead of delivering them, for tests.
type InMemoryEmail struct {
	Outbox []Email
}

// Send appends the message to the outbox and always succeeds.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m != nil {
		m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	}
	return nil
}
