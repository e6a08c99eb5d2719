// Package i18n renders user-facing messages in the language negotiated from
// the Accept-Language header.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	KeyInvalidCredentials = "auth.invalid.credentials"
	KeyLoginBlocked       = "auth.login.blocked"
	KeyRefreshInvalid     = "auth.refresh.invalid"
	KeyUnauthenticated    = "access.jwt.token"
	KeyAccessDenied       = "access.denied"
	KeyLogoutSuccess      = "success.logout"
	KeyPasswordChanged    = "password.change.success"
	KeyResetRequested     = "password.reset.requested"
	KeyResetCompleted     = "password.reset.success"
	KeyResetInvalid       = "password.reset.invalid"
	KeyWeakPassword       = "password.weak"
	KeyUserExists         = "user.exists"
	KeyUserNotFound       = "user.notfound"
	KeyOrgNotFound        = "org.notfound"
	KeyValidation         = "validation.error"
	KeyRateLimited        = "rate.limited"
	KeyServerError        = "server.error"
)

var supported = []language.Tag{
	language.English,
	language.Serbian,
}

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyInvalidCredentials: "Invalid email or password",
		KeyLoginBlocked:       "Too many failed login attempts. Try again in %d seconds",
		KeyRefreshInvalid:     "Refresh token is invalid or expired",
		KeyUnauthenticated:    "Authentication is required",
		KeyAccessDenied:       "Access denied",
		KeyLogoutSuccess:      "Logged out successfully",
		KeyPasswordChanged:    "Password changed. Sign in again on your other devices",
		KeyResetRequested:     "If an account with that email exists, a password reset link has been sent",
		KeyResetCompleted:     "Password has been reset. Sign in with the new password",
		KeyResetInvalid:       "Password reset link is invalid or has expired",
		KeyWeakPassword:       "Password must be at least %d characters long",
		KeyUserExists:         "A user with this email already exists",
		KeyUserNotFound:       "User not found",
		KeyOrgNotFound:        "Organization not found",
		KeyValidation:         "Request validation failed",
		KeyRateLimited:        "Too many requests",
		KeyServerError:        "Internal server error",
	},
	language.Serbian: {
		KeyInvalidCredentials: "Pogrešan email ili lozinka",
		KeyLoginBlocked:       "Previše neuspešnih pokušaja prijave. Pokušajte ponovo za %d sekundi",
		KeyRefreshInvalid:     "Token za osvežavanje je nevažeći ili je istekao",
		KeyUnauthenticated:    "Potrebna je autentifikacija",
		KeyAccessDenied:       "Pristup odbijen",
		KeyLogoutSuccess:      "Uspešno ste se odjavili",
		KeyPasswordChanged:    "Lozinka je promenjena. Prijavite se ponovo na ostalim uređajima",
		KeyResetRequested:     "Ako nalog sa ovim email-om postoji, poslat je link za promenu lozinke",
		KeyResetCompleted:     "Lozinka je promenjena. Prijavite se novom lozinkom",
		KeyResetInvalid:       "Link za promenu lozinke je nevažeći ili je istekao",
		KeyWeakPassword:       "Lozinka mora imati najmanje %d karaktera",
		KeyUserExists:         "Korisnik sa ovim email-om već postoji",
		KeyUserNotFound:       "Korisnik nije pronađen",
		KeyOrgNotFound:        "Organizacija nije pronađena",
		KeyValidation:         "Validacija zahteva nije uspela",
		KeyRateLimited:        "Previše zahteva",
		KeyServerError:        "Interna greška servera",
	},
}

type Translator struct {
	catalog *catalog.Builder
	matcher language.Matcher
}

func New() (*Translator, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, entries := range messages {
		for key, msg := range entries {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, err
			}
		}
	}

	return &Translator{
		catalog: builder,
		matcher: language.NewMatcher(supported),
	}, nil
}

// Negotiate picks the supported language that best matches an
// Accept-Language header. Garbage or an empty header yields English.
func (t *Translator) Negotiate(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return language.English
	}
	return supported[idx]
}

// Message renders key in the negotiated language. Unknown keys are
// returned as-is.
func (t *Translator) Message(acceptLanguage string, key string, args ...any) string {
	if t == nil {
		return key
	}
	printer := message.NewPrinter(t.Negotiate(acceptLanguage), message.Catalog(t.catalog))
	return printer.Sprintf(key, args...)
}
