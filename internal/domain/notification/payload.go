package notification

import (
	"fmt"
	"net/url"
)

// Kind is the logical notification stream a payload belongs to.
type Kind string

const (
	KindDailyCheckIn      Kind = "daily-checkin"
	KindPostEventFollowUp Kind = "post-event-followup"
	KindActiveCheckIn     Kind = "active-checkin"
	KindTest              Kind = "test"
)

// Wire values of Payload.Type understood by the installed service worker.
const (
	typeDailyCheckIn      = "daily-checkin"
	typePostEventFollowUp = "post-attack-followup"
	typeActiveCheckIn     = "active-attack-checkin"
	typeTest              = "test"
)

// Payload is the transport-agnostic message handed to a push sender.
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Icon    string `json:"icon"`
	Badge   string `json:"badge"`
	Tag     string `json:"tag"`
	URL     string `json:"url"`
	Type    string `json:"type"`
	EventID string `json:"attackId,omitempty"`
}

// PayloadBuilder maps a notification kind to its payload. It has no side
// effects; the fields only parameterise branding.
type PayloadBuilder struct {
	AppName string
	Icon    string
	Badge   string
}

// NewPayloadBuilder returns a builder with the default branding for empty fields.
func NewPayloadBuilder(appName, icon, badge string) PayloadBuilder {
	if appName == "" {
		appName = "Aiding Migraine"
	}
	if icon == "" {
		icon = "./icons/icon-192x192.png"
	}
	if badge == "" {
		badge = "./icons/icon-72x72.png"
	}
	return PayloadBuilder{AppName: appName, Icon: icon, Badge: badge}
}

// Build returns the payload for kind. eventID is required for the
// follow-up and active check-in kinds and ignored otherwise.
//
// Tags identify the stream so a transport replacing notifications with the
// same tag collapses repeats of one stream while distinct events stay
// independent.
func (b PayloadBuilder) Build(kind Kind, eventID string) (Payload, error) {
	p := Payload{
		Title: b.AppName,
		Icon:  b.Icon,
		Badge: b.Badge,
	}
	switch kind {
	case KindDailyCheckIn:
		p.Body = "How was your day? Log your migraine status"
		p.Tag = "daily-checkin"
		p.URL = "./?action=log"
		p.Type = typeDailyCheckIn
	case KindPostEventFollowUp:
		if eventID == "" {
			return Payload{}, fmt.Errorf("%s payload requires an event id", kind)
		}
		p.Body = "How are you feeling now? Update your status"
		p.Tag = "followup-" + eventID
		p.URL = "./?action=update&attackId=" + url.QueryEscape(eventID)
		p.Type = typePostEventFollowUp
		p.EventID = eventID
	case KindActiveCheckIn:
		if eventID == "" {
			return Payload{}, fmt.Errorf("%s payload requires an event id", kind)
		}
		p.Body = "How is your migraine? Update your pain level or add relief methods"
		p.Tag = "active-checkin-" + eventID
		p.URL = "./?action=active-checkin"
		p.Type = typeActiveCheckIn
		p.EventID = eventID
	case KindTest:
		p.Title = b.AppName + " - Test"
		p.Body = "This is a test notification from the server"
		p.Tag = "test"
		p.URL = "./"
		p.Type = typeTest
	default:
		return Payload{}, fmt.Errorf("unknown notification kind %q", kind)
	}
	return p, nil
}
