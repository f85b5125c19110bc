// Package liqpay signs checkout requests for, and verifies callbacks from, the LiqPay
// checkout API.
package liqpay

import (
	"bytes"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

const (
	CheckoutURL = "https://www.liqpay.ua/api/3/checkout"
	APIVersion  = "3"
)

var ErrInvalidSignature = errors.New("liqpay: invalid signature")

type Client struct {
	PublicKey  string
	PrivateKey string
	Sandbox    bool
}

func New(publicKey, privateKey string, sandbox bool) *Client {
	return &Client{PublicKey: publicKey, PrivateKey: privateKey, Sandbox: sandbox}
}

// Signature is base64(sha1(private_key + data + private_key)).
func (c *Client) Signature(data string) string {
	sum := sha1.Sum([]byte(c.PrivateKey + data + c.PrivateKey))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Verify compares signature against the expected one in constant time.
func (c *Client) Verify(data, signature string) bool {
	if data == "" || signature == "" {
		return false
	}
	expected := c.Signature(data)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Encode adds the public key, API version and sandbox flag to params and returns the
// base64 data blob together with its signature.
func (c *Client) Encode(params map[string]any) (data, signature string, err error) {
	p := make(map[string]any, len(params)+3)
	for k, v := range params {
		p[k] = v
	}
	p["public_key"] = c.PublicKey
	p["version"] = APIVersion
	if c.Sandbox {
		p["sandbox"] = 1
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("liqpay: encode params: %w", err)
	}
	data = base64.StdEncoding.EncodeToString(raw)
	return data, c.Signature(data), nil
}

func (c *Client) CheckoutURL(data, signature string) string {
	q := url.Values{}
	q.Set("data", data)
	q.Set("signature", signature)
	return CheckoutURL + "?" + q.Encode()
}

// Callback is the decoded server callback. LiqPay sends some ids as numbers and some
// as strings depending on the action, so they are kept as FlexString.
type Callback struct {
	Action         string     `json:"action"`
	Status         string     `json:"status"`
	OrderID        string     `json:"order_id"`
	PaymentID      FlexString `json:"payment_id"`
	AcqID          FlexString `json:"acq_id"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	ErrDescription string     `json:"err_description"`
	CustomerUserID string     `json:"customer_user_id"`
}

// Decode verifies the signature and decodes data.
func (c *Client) Decode(data, signature string) (*Callback, error) {
	if !c.Verify(data, signature) {
		return nil, ErrInvalidSignature
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("liqpay: decode data: %w", err)
	}
	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("liqpay: parse data: %w", err)
	}
	return &cb, nil
}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }
