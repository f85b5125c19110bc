package liqpay

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureKnownVector(t *testing.T) {
	c := New("pub", "priv", false)
	// base64(sha1("priv" + "abc" + "priv"))
	assert.Equal(t, "7DrbuIDtqdedBPTx+DjB5pWWEJs=", c.Signature("abc"))
}

func TestEncodeVerifyDecodeRoundTrip(t *testing.T) {
	c := New("pub", "priv", true)
	data, sig, err := c.Encode(map[string]any{"order_id": "sub_1_starter_x", "amount": 349})
	require.NoError(t, err)
	assert.True(t, c.Verify(data, sig))
	assert.False(t, c.Verify(data, sig+"x"))
	assert.False(t, c.Verify("", sig))

	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	var params map[string]any
	require.NoError(t, json.Unmarshal(raw, &params))
	assert.Equal(t, "pub", params["public_key"])
	assert.Equal(t, "3", params["version"])
	assert.EqualValues(t, 1, params["sandbox"])

	checkout := c.CheckoutURL(data, sig)
	assert.True(t, strings.HasPrefix(checkout, CheckoutURL+"?"))
	u, err := url.Parse(checkout)
	require.NoError(t, err)
	assert.Equal(t, data, u.Query().Get("data"))
	assert.Equal(t, sig, u.Query().Get("signature"))
}

func TestDecodeAcceptsNumericIDs(t *testing.T) {
	c := New("pub", "priv", false)
	payload := `{"status":"success","order_id":"o-1","payment_id":123456,"acq_id":"987"}`
	data := base64.StdEncoding.EncodeToString([]byte(payload))

	cb, err := c.Decode(data, c.Signature(data))
	require.NoError(t, err)
	assert.Equal(t, "success", cb.Status)
	assert.Equal(t, "123456", cb.PaymentID.String())
	assert.Equal(t, "987", cb.AcqID.String())

	_, err = c.Decode(data, "bogus")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
