// Package notifier sends courtesy SMS directly from the device when Twilio
// credentials are configured, e.g. "journey started" notes to the contact
// list. The backend remains the channel of record for actual alerts; this
// never carries SOS traffic.
package notifier

import (
	"github.com/shieldx/companion/agent/logger"
	"github.com/shieldx/companion/shared"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var logg = logger.NewLogger()

type SMSNotifier struct {
	client   *twilio.RestClient
	config   shared.TwilioConfig
	testMode bool
}

func NewSMSNotifier(config shared.TwilioConfig, testMode bool) *SMSNotifier {
	client := twilio.NewRestClientWithParams(twilio.RestClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})

	return &SMSNotifier{client: client, config: config, testMode: testMode}
}

// Enabled reports whether credentials are configured at all; callers skip
// the notifier entirely when they are not.
func (n *SMSNotifier) Enabled() bool {
	return n.config.AccountSid != "" && n.config.AuthToken != ""
}

func (n *SMSNotifier) SendMessage(to, msg string) error {
	if n.testMode {
		logg.Infof("[test mode] SMS to %v: %v", to, msg)
		return nil
	}

	params := &openapi.CreateMessageParams{}
	params.SetMessagingServiceSid(n.config.MessagingServiceSid)
	params.SetTo(to)
	params.SetBody(msg)

	resp, err := n.client.ApiV2010.CreateMessage(params)
	if err != nil {
		return err
	}

	if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		logg.Warnf("twilio reported: %v", *resp.ErrorMessage)
	}

	return nil
}

// Broadcast sends msg to every number on the list, best effort. Individual
// failures are logged and do not stop the rest of the list.
func (n *SMSNotifier) Broadcast(phoneList []string, msg string) {
	if !n.Enabled() {
		return
	}

	for _, phone := range phoneList {
		if err := n.SendMessage(phone, msg); err != nil {
			logg.Errorf("courtesy SMS to %v failed: %v", phone, err)
		}
	}
}
