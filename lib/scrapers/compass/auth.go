package compass

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"edexport-backend/lib/session"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

var LoginFailed = fmt.Errorf("Sorry - your username and/or password was incorrect")

// Credentials authenticates through the ASP.NET login form: fetch the login
// page for its viewstate tokens, then post the form and look for the portal's
// incorrect-password marker.
type Credentials struct {
	Username string
	Password string
}

func (a Credentials) Authenticate(ctx context.Context, s *session.Session) error {
	ctx, span := tracer.Start(ctx, "auth:Credentials")
	defer span.End()

	res, err := s.Http.R().
		SetContext(ctx).
		Get("/login.aspx?sessionstate=disabled")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	viewstate := doc.Find("input#__VIEWSTATE").AttrOr("value", "")
	viewstateGenerator := doc.Find("input#__VIEWSTATEGENERATOR").AttrOr("value", "")
	if viewstate == "" {
		span.SetStatus(codes.Error, "failed to find viewstate token")
		return fmt.Errorf("could not find the login form's viewstate token")
	}

	res, err = s.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"__EVENTTARGET":        "button1",
			"__EVENTARGUMENT":      "",
			"__VIEWSTATE":          viewstate,
			"__VIEWSTATEGENERATOR": viewstateGenerator,
			"browserFingerprint":   "3597254041",
			"username":             a.Username,
			"password":             a.Password,
			"g-recaptcha-response": "",
			"rememberMeChk":        "on",
		}).
		Post("/login.aspx?sessionstate=disabled")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	if res.StatusCode() != http.StatusOK {
		span.SetStatus(codes.Error, "login returned non-200")
		return fmt.Errorf("login request returned status %d", res.StatusCode())
	}
	if strings.Contains(res.String(), "your username and/or password was incorrect") {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}
	return nil
}

// BrowserCookies reuses the cookie store of a browser that has already logged
// in, for tenants where the form login sits behind a captcha.
type BrowserCookies struct {
	Cookies []*http.Cookie
}

func (a BrowserCookies) Authenticate(ctx context.Context, s *session.Session) error {
	if len(a.Cookies) == 0 {
		return fmt.Errorf("no cookies were provided")
	}
	s.SetCookies(a.Cookies)
	return nil
}
