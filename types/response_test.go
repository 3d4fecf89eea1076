package types

import (
	"encoding/json"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"testing"
)

func Test_NewResponse_KeyAndAttributeAccessAgree(t *testing.T) {
	// When
	resp, err := NewResponse(map[string]interface{}{
		"walletname":     "wallet.jmdat",
		"already_loaded": false,
		"nested":         map[string]interface{}{"a": []interface{}{"x", "y"}},
	})

	// Then
	require.Nil(t, err)
	for _, key := range []string{"walletname", "already_loaded", "nested"} {
		byKey, ok := resp.Get(key)
		require.True(t, ok)
		byAttr, err := resp.Attr(key)
		require.Nil(t, err)
		require.Equal(t, byKey, byAttr)
	}
	name, err := resp.GetString("walletname")
	require.Nil(t, err)
	require.Equal(t, "wallet.jmdat", name)
	loaded, err := resp.GetBool("already_loaded")
	require.Nil(t, err)
	require.False(t, loaded)
}

func Test_NewResponse_CopiesInput(t *testing.T) {
	src := map[string]interface{}{"list": []interface{}{"a"}}
	resp, err := NewResponse(src)
	require.Nil(t, err)

	// When
	src["list"].([]interface{})[0] = "mutated"
	src["extra"] = true
	got := resp.Dict().(map[string]interface{})
	got["list"].([]interface{})[0] = "mutated again"

	// Then
	require.False(t, resp.Has("extra"))
	list, err := resp.GetList("list")
	require.Nil(t, err)
	require.Equal(t, []interface{}{"a"}, list)
}

func Test_NewResponse_DictEqualsInput(t *testing.T) {
	src := []interface{}{map[string]interface{}{"k": "v"}, "s", true, nil}

	// When
	resp, err := NewResponse(src)

	// Then
	require.Nil(t, err)
	require.True(t, resp.IsArray())
	require.Equal(t, src, resp.Dict())
	require.Equal(t, 4, resp.Len())
	first, ok := resp.Index(0)
	require.True(t, ok)
	require.Equal(t, map[string]interface{}{"k": "v"}, first)
	_, ok = resp.Index(4)
	require.False(t, ok)
}

func Test_NewResponse_RejectsScalars(t *testing.T) {
	for _, v := range []interface{}{"text", 1.5, true, nil} {
		_, err := NewResponse(v)
		require.True(t, errors.Is(err, ErrInvalidResponse))
	}
}

func Test_Attr_MissingAndNull(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"present":null}`))
	require.Nil(t, err)

	// When
	nullValue, nullErr := resp.Attr("present")
	_, missingErr := resp.Attr("absent")

	// Then
	require.Nil(t, nullErr)
	require.Nil(t, nullValue)
	require.True(t, errors.Is(missingErr, ErrNoAttribute))
	_, ok := resp.Get("absent")
	require.False(t, ok)
}

func Test_Attr_OnArray(t *testing.T) {
	resp, err := DecodeResponse([]byte(`[1,2]`))
	require.Nil(t, err)

	// When
	_, err = resp.Attr("x")

	// Then
	require.True(t, errors.Is(err, ErrNotObject))
}

func Test_DecodeResponse_Numbers(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"amount":2100000000000000,"fee":0.0002,"bad":"1"}`))
	require.Nil(t, err)

	// When
	amount, amountErr := resp.GetInt("amount")
	fee, feeErr := resp.GetFloat("fee")
	_, badErr := resp.GetInt("bad")
	_, fracErr := resp.GetInt("fee")

	// Then
	require.Nil(t, amountErr)
	require.Equal(t, int64(2100000000000000), amount)
	require.Nil(t, feeErr)
	require.InDelta(t, 0.0002, fee, 1e-12)
	require.True(t, errors.Is(badErr, ErrUnexpectedType))
	require.True(t, errors.Is(fracErr, ErrUnexpectedType))
}

func Test_DecodeResponse_EmptyAndInvalid(t *testing.T) {
	empty, err := DecodeResponse(nil)
	require.Nil(t, err)
	require.True(t, empty.IsObject())
	require.Equal(t, 0, empty.Len())

	_, err = DecodeResponse([]byte(`"scalar"`))
	require.True(t, errors.Is(err, ErrInvalidResponse))

	_, err = DecodeResponse([]byte(`{"a":1} {"b":2}`))
	require.NotNil(t, err)

	_, err = DecodeResponse([]byte(`{`))
	require.NotNil(t, err)
}

func Test_Response_DecodeIntoStruct(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"walletname":"w.jmdat","already_loaded":true,"token":"abc"}`))
	require.Nil(t, err)

	// When
	var unlock UnlockWalletResponse
	err = resp.Decode(&unlock)

	// Then
	require.Nil(t, err)
	require.Equal(t, UnlockWalletResponse{WalletName: "w.jmdat", AlreadyLoaded: true, Token: "abc"}, unlock)
}

func Test_Response_MarshalRoundTrip(t *testing.T) {
	body := `{"a":[1,"b",{"c":null}],"d":true}`
	resp, err := DecodeResponse([]byte(body))
	require.Nil(t, err)

	// When
	data, err := json.Marshal(resp)

	// Then
	require.Nil(t, err)
	require.JSONEq(t, body, string(data))
	require.JSONEq(t, body, resp.String())
	require.Equal(t, []string{"a", "d"}, resp.Keys())
}

func Test_GetObject(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"walletinfo":{"accounts":[]},"name":"x"}`))
	require.Nil(t, err)

	// When
	info, infoErr := resp.GetObject("walletinfo")
	_, nameErr := resp.GetObject("name")

	// Then
	require.Nil(t, infoErr)
	require.True(t, info.Has("accounts"))
	require.True(t, errors.Is(nameErr, ErrUnexpectedType))
}

func Test_DecodeNotification(t *testing.T) {
	frame := []byte(`{"type":"coinjoin_state_update","coinjoin_state":0}`)

	// When
	n, err := DecodeNotification(frame)
	frame[0] = 'x'

	// Then
	require.Nil(t, err)
	require.Equal(t, "coinjoin_state_update", n.Type())
	require.Equal(t, byte('{'), n.Raw()[0])
	state, err := n.GetInt("coinjoin_state")
	require.Nil(t, err)
	require.Equal(t, int64(0), state)

	untyped, err := DecodeNotification([]byte(`{"txid":"ab"}`))
	require.Nil(t, err)
	require.Equal(t, "", untyped.Type())
}
