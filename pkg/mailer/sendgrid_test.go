package mailer

import (
	"context"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
)

type fakeSender struct {
	sent   *mail.SGMailV3
	status int
}

func (f *fakeSender) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	return &rest.Response{StatusCode: f.status, Body: "nope"}, nil
}

func TestNewSendGridRequiresKey(t *testing.T) {
	_, err := NewSendGrid(config.SendgridConfig{DefaultFrom: "orders@farmlink.app"})
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewSendGrid(config.SendgridConfig{APIKey: "SG.key"})
	assert.ErrorIs(t, err, errFromRequired)
}

func TestSendBuildsSingleEmail(t *testing.T) {
	fake := &fakeSender{status: 202}
	m := &SendGrid{client: fake, from: mail.NewEmail("Farmlink", "orders@farmlink.app")}

	require.NoError(t, m.Send(context.Background(), Message{ToEmail: "ada@farm.test", ToName: "Ada", Subject: "Order shipped", Text: "On its way"}))
	require.NotNil(t, fake.sent)
	assert.Equal(t, "Order shipped", fake.sent.Subject)
	assert.Equal(t, "orders@farmlink.app", fake.sent.From.Address)
	require.Len(t, fake.sent.Personalizations, 1)
	assert.Equal(t, "ada@farm.test", fake.sent.Personalizations[0].To[0].Address)
}

func TestSendRejectsErrorStatus(t *testing.T) {
	m := &SendGrid{client: &fakeSender{status: 401}, from: mail.NewEmail("Farmlink", "orders@farmlink.app")}
	assert.Error(t, m.Send(context.Background(), Message{ToEmail: "ada@farm.test", Subject: "x", Text: "y"}))
	assert.Error(t, m.Send(context.Background(), Message{Subject: "x"}))
}
