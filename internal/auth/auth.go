// Package auth logs in to the target service and carries the resulting
// cookies and token to every fuzzing request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/openapi-fuzz/internal/payload"
	"github.com/mark3labs/openapi-fuzz/internal/transport"
)

// Config describes how to log in. The file is JSON (or YAML) shaped as:
//
//	{
//	  "fullEndpoint": "http://localhost:8080/login",
//	  "verb": "POST",
//	  "contentType": "application/json",
//	  "expectCookies": false,
//	  "payload": {"username": "u", "password": "p", "usernameField": "email", "passwordField": "password"},
//	  "token": {"headerPrefix": "Bearer", "extractFromField": "data.token", "httpHeaderName": "Authorization"}
//	}
type Config struct {
	FullEndpoint  string        `yaml:"fullEndpoint"`
	Verb          string        `yaml:"verb"`
	ContentType   string        `yaml:"contentType"`
	ExpectCookies bool          `yaml:"expectCookies"`
	Payload       PayloadConfig `yaml:"payload"`
	Token         TokenConfig   `yaml:"token"`
}

type PayloadConfig struct {
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	UsernameField string `yaml:"usernameField"`
	PasswordField string `yaml:"passwordField"`
}

type TokenConfig struct {
	HeaderPrefix string `yaml:"headerPrefix"`
	// ExtractFromField is a dotted path into the login response, e.g.
	// "data.accessToken" or "tokens.0.value". Empty disables token auth.
	ExtractFromField string `yaml:"extractFromField"`
	HTTPHeaderName   string `yaml:"httpHeaderName"`
}

// ErrNoConfig is returned by LoadConfig when the file does not exist.
var ErrNoConfig = errors.New("auth config not found")

// LoadConfig reads and validates an auth config file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("read auth config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse auth config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.FullEndpoint) == "" {
		missing = append(missing, "fullEndpoint")
	}
	if c.Payload.UsernameField == "" {
		missing = append(missing, "payload.usernameField")
	}
	if c.Payload.PasswordField == "" {
		missing = append(missing, "payload.passwordField")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid auth config: missing %s", strings.Join(missing, ", "))
	}
	if c.Verb == "" {
		c.Verb = http.MethodPost
	}
	if c.ContentType == "" {
		c.ContentType = "application/json"
	}
	if _, err := loginEncoding(c.ContentType); err != nil {
		return err
	}
	if c.Token.HTTPHeaderName == "" {
		c.Token.HTTPHeaderName = "Authorization"
	}
	return nil
}

// LoadOptional loads the config at path. A missing or invalid file is
// logged and yields nil: fuzzing then continues without authentication.
func LoadOptional(path string, logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := LoadConfig(path)
	switch {
	case errors.Is(err, ErrNoConfig):
		logger.Info("auth config not found, continuing without authentication", zap.String("path", path))
		return nil
	case err != nil:
		logger.Info("auth config unusable, continuing without authentication", zap.String("path", path), zap.Error(err))
		return nil
	}
	logger.Info("auth config loaded", zap.String("path", path))
	return cfg
}

// Token is an extracted credential and how to present it.
type Token struct {
	Value      string
	Prefix     string
	HeaderName string
}

// Context holds the credentials of one login. A nil *Context applies
// nothing.
type Context struct {
	Cookies []string
	Token   *Token
}

// Apply adds the cookie and token headers to h.
func (c *Context) Apply(h http.Header) {
	if c == nil {
		return
	}
	if len(c.Cookies) > 0 {
		h.Set("Cookie", strings.Join(c.Cookies, "; "))
	}
	if c.Token != nil && c.Token.Value != "" {
		v := c.Token.Value
		if c.Token.Prefix != "" {
			v = c.Token.Prefix + " " + v
		}
		name := c.Token.HeaderName
		if name == "" {
			name = "Authorization"
		}
		h.Set(name, v)
	}
}

// Doer sends a request; *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, cred transport.Credentials, req transport.Request) (*transport.Response, error)
}

// Login sends the configured credentials and builds a Context from the
// response. A non-2xx answer is an error.
func Login(ctx context.Context, d Doer, cfg *Config) (*Context, error) {
	if cfg == nil {
		return nil, errors.New("auth: nil config")
	}
	enc, err := loginEncoding(cfg.ContentType)
	if err != nil {
		return nil, err
	}
	req := transport.Request{
		Method: cfg.Verb,
		URL:    cfg.FullEndpoint,
		Header: http.Header{"Content-Type": []string{cfg.ContentType}},
	}
	switch enc {
	case encodingForm:
		req.RawBody = []byte(url.Values{
			cfg.Payload.UsernameField: {cfg.Payload.Username},
			cfg.Payload.PasswordField: {cfg.Payload.Password},
		}.Encode())
	default:
		req.Body = payload.Object{
			cfg.Payload.UsernameField: cfg.Payload.Username,
			cfg.Payload.PasswordField: cfg.Payload.Password,
		}
	}
	resp, err := d.Do(ctx, nil, req)
	if err != nil {
		return nil, fmt.Errorf("auth: login request: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("auth: login rejected with status %d", resp.StatusCode)
	}

	ac := &Context{}
	if cfg.ExpectCookies {
		for _, sc := range (&http.Response{Header: resp.Header}).Cookies() {
			ac.Cookies = append(ac.Cookies, sc.Name+"="+sc.Value)
		}
		if len(ac.Cookies) == 0 {
			return nil, errors.New("auth: login response carried no cookies")
		}
	}
	if field := strings.TrimSpace(cfg.Token.ExtractFromField); field != "" {
		value, err := extractField(resp.Body, field)
		if err != nil {
			return nil, err
		}
		ac.Token = &Token{Value: value, Prefix: cfg.Token.HeaderPrefix, HeaderName: cfg.Token.HTTPHeaderName}
	}
	return ac, nil
}

type encoding int

const (
	encodingJSON encoding = iota
	encodingForm
)

// loginEncoding maps a login content type to the body encoding used for the
// credentials. Only JSON and URL-encoded forms are supported.
func loginEncoding(contentType string) (encoding, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, fmt.Errorf("invalid auth config: contentType %q: %w", contentType, err)
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return encodingJSON, nil
	case mt == "application/x-www-form-urlencoded":
		return encodingForm, nil
	}
	return 0, fmt.Errorf("invalid auth config: unsupported contentType %q (want application/json or application/x-www-form-urlencoded)", contentType)
}

// extractField reads the value at a dotted path from a JSON document.
// Numeric segments index arrays.
func extractField(body []byte, field string) (string, error) {
	v, err := fastjson.ParseBytes(body)
	if err != nil {
		return "", fmt.Errorf("auth: login response is not JSON: %w", err)
	}
	keys := strings.Split(field, ".")
	got := v.Get(keys...)
	if got == nil {
		return "", fmt.Errorf("auth: field %q not found in login response", field)
	}
	switch got.Type() {
	case fastjson.TypeString:
		return string(got.GetStringBytes()), nil
	case fastjson.TypeNumber:
		// raw text keeps integers beyond float64 precision intact
		return got.String(), nil
	}
	return "", fmt.Errorf("auth: field %q is %s, not a string", field, got.Type())
}
