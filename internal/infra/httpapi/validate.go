package httpapi

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// pushServiceHosts lists the push services browsers hand out endpoints for.
var pushServiceHosts = []string{
	"fcm.googleapis.com",
	"updates.push.services.mozilla.com",
	"web.push.apple.com",
	"wns2-*.notify.windows.com",
	"android.googleapis.com",
}

// validateEndpoint accepts only URLs on a known push service; production
// additionally requires https.
func validateEndpoint(raw string, production bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return errors.New("endpoint must be a valid URL")
	}
	if production && u.Scheme != "https" {
		return errors.New("subscription endpoints must use HTTPS in production")
	}
	host := strings.ToLower(u.Hostname())
	for _, pattern := range pushServiceHosts {
		if ok, _ := path.Match(pattern, host); ok {
			return nil
		}
	}
	return errors.New("subscription endpoint must be from a valid push service")
}
