package security

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims carries the registered claims of an access token with
// nanosecond-exact timestamps. jwt.NumericDate goes through float64 and
// jwt.TimePrecision on the way in and out, which can move the expiry of a
// token issued on a fractional second.
type accessClaims struct {
	Subject   string       `json:"sub,omitempty"`
	IssuedAt  *preciseDate `json:"iat,omitempty"`
	ExpiresAt *preciseDate `json:"exp,omitempty"`
}

var _ jwt.Claims = (*accessClaims)(nil)

func (c *accessClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return c.ExpiresAt.numericDate(), nil
}

func (c *accessClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return c.IssuedAt.numericDate(), nil
}

func (c *accessClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *accessClaims) GetIssuer() (string, error) {
	return "", nil
}

func (c *accessClaims) GetSubject() (string, error) {
	return c.Subject, nil
}

func (c *accessClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// preciseDate is a NumericDate encoded as seconds with up to nine fractional
// digits and decoded without a float round trip.
type preciseDate struct {
	time.Time
}

func newPreciseDate(t time.Time) *preciseDate {
	return &preciseDate{Time: t}
}

func (d *preciseDate) numericDate() *jwt.NumericDate {
	if d == nil {
		return nil
	}
	// Built directly so NewNumericDate does not truncate it.
	return &jwt.NumericDate{Time: d.Time}
}

func (d preciseDate) MarshalJSON() ([]byte, error) {
	sec, nsec := d.Unix(), int64(d.Nanosecond())
	if nsec == 0 {
		return strconv.AppendInt(nil, sec, 10), nil
	}

	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -(sec + 1)
		nsec = int64(time.Second) - nsec
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", nsec), "0")
	return []byte(fmt.Sprintf("%s%d.%s", sign, sec, frac)), nil
}

func (d *preciseDate) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		return nil
	}

	// Exponent notation is legal JSON but never produced by us; fall back to
	// the float reading for it.
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse numeric date %q: %w", s, err)
		}
		whole, frac := math.Modf(f)
		d.Time = time.Unix(int64(whole), int64(frac*1e9)).UTC()
		return nil
	}

	whole, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return fmt.Errorf("parse numeric date %q: %w", s, err)
	}

	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		n, err := strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return fmt.Errorf("parse numeric date %q: %w", s, err)
		}
		nsec = int64(n)
		if strings.HasPrefix(whole, "-") {
			nsec = -nsec
		}
	}

	d.Time = time.Unix(sec, nsec).UTC()
	return nil
}
