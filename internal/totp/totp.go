// Package totp verifies device-bound one-time codes against an ordered list
// of drift-tolerance policies.
package totp

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	Period     = 30
	CodeLength = 6
	SecretSize = 20
)

var (
	ErrInvalidFormat = errors.New("code must be exactly 6 digits")
	ErrCodeMismatch  = errors.New("code does not match")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type PolicyKind string

const (
	SlidingWindow  PolicyKind = "sliding_window"
	DirectEquality PolicyKind = "direct_equality"
	BruteForce     PolicyKind = "brute_force"
)

// Policy is one verification strategy. Steps applies to SlidingWindow,
// Offsets to DirectEquality and Range to BruteForce.
type Policy struct {
	Kind    PolicyKind
	Steps   uint
	Offsets []time.Duration
	Range   time.Duration
}

func (p Policy) String() string {
	switch p.Kind {
	case SlidingWindow:
		return fmt.Sprintf("%s(±%d)", p.Kind, p.Steps)
	case DirectEquality:
		return fmt.Sprintf("%s(%v)", p.Kind, p.Offsets)
	case BruteForce:
		return fmt.Sprintf("%s(±%s)", p.Kind, p.Range)
	}
	return string(p.Kind)
}

// DefaultPolicies is evaluated in order; the cheap narrow window handles the
// common case and the wider checks only run for drifted clocks.
var DefaultPolicies = []Policy{
	{Kind: SlidingWindow, Steps: 2},
	{Kind: DirectEquality, Offsets: []time.Duration{-30 * time.Second, 0, 30 * time.Second}},
	{Kind: SlidingWindow, Steps: 6},
	{Kind: BruteForce, Range: 300 * time.Second},
}

// Match reports which policy accepted a code.
type Match struct {
	Policy Policy
	Index  int
}

type Engine struct {
	Issuer   string
	Policies []Policy
}

func NewEngine(issuer string) *Engine {
	return &Engine{Issuer: issuer, Policies: DefaultPolicies}
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NormalizeCode trims whitespace and checks the code is six ASCII digits.
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != CodeLength {
		return "", ErrInvalidFormat
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", ErrInvalidFormat
		}
	}
	return code, nil
}

// Verify checks code against secret at now. The format is validated before
// any HMAC is computed.
func (e *Engine) Verify(secret, code string, now time.Time) (Match, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Match{}, err
	}
	if _, err := decodeSecret(secret); err != nil {
		return Match{}, err
	}

	for i, policy := range e.Policies {
		ok, err := check(policy, secret, code, now)
		if err != nil {
			return Match{}, err
		}
		if ok {
			return Match{Policy: policy, Index: i}, nil
		}
	}
	return Match{}, ErrCodeMismatch
}

func check(p Policy, secret, code string, now time.Time) (bool, error) {
	switch p.Kind {
	case SlidingWindow:
		opts := validateOpts()
		opts.Skew = p.Steps
		return totp.ValidateCustom(code, secret, now.UTC(), opts)
	case DirectEquality:
		for _, offset := range p.Offsets {
			ok, err := codeAt(secret, code, now.Add(offset))
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case BruteForce:
		for t := now.Add(-p.Range); !t.After(now.Add(p.Range)); t = t.Add(Period * time.Second) {
			ok, err := codeAt(secret, code, t)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown verification policy %q", p.Kind)
}

func codeAt(secret, code string, at time.Time) (bool, error) {
	expected, err := totp.GenerateCodeCustom(secret, at.UTC(), validateOpts())
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1, nil
}

func decodeSecret(secret string) ([]byte, error) {
	raw, err := secretEncoding.DecodeString(strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "=")))
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("decode totp secret: %w", otp.ErrValidateSecretInvalidBase32)
	}
	return raw, nil
}

// GenerateSecret returns a fresh 160-bit secret, base32 without padding.
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return secretEncoding.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI authenticator apps enroll from.
func (e *Engine) ProvisioningURI(account, secret string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: account,
		Period:      Period,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("build provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// QRDataURL renders content as a PNG QR code data URL.
func QRDataURL(content string, size int) (string, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	code, err = barcode.Scale(code, size, size)
	if err != nil {
		return "", fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Enrollment is the one-time artifact surfaced for a newly created device.
type Enrollment struct {
	URI string
	QR  string
}

func (e *Engine) Enroll(account, secret string) (*Enrollment, error) {
	uri, err := e.ProvisioningURI(account, secret)
	if err != nil {
		return nil, err
	}
	qrURL, err := QRDataURL(uri, 256)
	if err != nil {
		return nil, err
	}
	return &Enrollment{URI: uri, QR: qrURL}, nil
}
