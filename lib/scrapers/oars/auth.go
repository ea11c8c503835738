package oars

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"edexport-backend/lib/session"

	"github.com/PuerkitoBio/goquery"
)

var LoginFailed = fmt.Errorf("oars rejected the provided username/password")

// Credentials logs into OARS with a username and password. The login form
// carries its own csrf token, separate from the api security token.
type Credentials struct {
	School   string
	Username string
	Password string
}

var _ session.Authenticator = Credentials{}

func (c Credentials) Authenticate(ctx context.Context, s *session.Session) error {
	ctx, span := tracer.Start(ctx, "credentials:Authenticate")
	defer span.End()

	res, err := s.Http.R().
		SetContext(ctx).
		Get("/" + c.School)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return err
	}
	token, exists := doc.Find(`input[name="security[token]"]`).Attr("value")
	if !exists {
		return fmt.Errorf("could not find login csrf token")
	}

	res, err = s.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"security[token]": token,
			"username":        c.Username,
			"password":        c.Password,
		}).
		Post("/" + c.School)
	if err != nil {
		return err
	}
	if res.StatusCode() != http.StatusOK {
		return fmt.Errorf("login request got status %d", res.StatusCode())
	}
	// a rejected login lands back on the login form
	if strings.Contains(res.String(), `name="security[token]"`) {
		return LoginFailed
	}
	return nil
}

// BrowserCookies authenticates with cookies lifted from a logged-in browser.
type BrowserCookies struct {
	Cookies []*http.Cookie
}

var _ session.Authenticator = BrowserCookies{}

func (b BrowserCookies) Authenticate(ctx context.Context, s *session.Session) error {
	if len(b.Cookies) == 0 {
		return fmt.Errorf("no cookies were provided")
	}
	s.SetCookies(b.Cookies)
	return nil
}
