package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const (
	walletName = "wallet.jmdat"
	password   = "hunter2"
)

type testServer struct {
	*Server
	http *httptest.Server
}

func startTestServer(t *testing.T) *testServer {
	s := NewServer(0, time.Minute)
	s.Daemon().AddWallet(walletName, password)
	ts := &testServer{Server: s, http: httptest.NewServer(s.Handler())}
	t.Cleanup(func() {
		s.Stop()
		ts.http.Close()
	})
	return ts
}

func (ts *testServer) sendRequest(method, path, token string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.http.URL+apiPrefix+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func (ts *testServer) unlock(t *testing.T) string {
	status, body, err := ts.sendRequest("POST", fmt.Sprintf("/wallet/%s/unlock", walletName), "",
		map[string]interface{}{"jsonrpc": "2.0", "id": 1, "password": password})
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, status)
	resp := types.UnlockWalletResponse{}
	require.Nil(t, json.Unmarshal(body, &resp))
	return resp.Token
}

func errorMessage(t *testing.T, body []byte) string {
	resp := types.ErrorResponse{}
	require.Nil(t, json.Unmarshal(body, &resp))
	return resp.Message
}

func Test_UnlockWallet(t *testing.T) {
	s := startTestServer(t)

	// When
	status, body, err := s.sendRequest("POST", "/wallet/"+walletName+"/unlock", "", types.UnlockWalletRequest{Password: "wrong"})
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, types.MsgInvalidCredentials, errorMessage(t, body))

	// When
	status, body, err = s.sendRequest("POST", "/wallet/missing.jmdat/unlock", "", types.UnlockWalletRequest{Password: password})
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, types.MsgNoWalletFound, errorMessage(t, body))

	// When
	status, body, err = s.sendRequest("POST", "/wallet/"+walletName+"/unlock", "", types.UnlockWalletRequest{Password: password})
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, status)
	first := types.UnlockWalletResponse{}
	require.Nil(t, json.Unmarshal(body, &first))
	require.False(t, first.AlreadyLoaded)
	require.NotEmpty(t, first.Token)

	// When
	second := s.unlock(t)
	status, _, err = s.sendRequest("GET", "/wallet/"+walletName+"/display", first.Token, nil)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _, err = s.sendRequest("GET", "/wallet/"+walletName+"/display", second, nil)
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, status)
}

func Test_CreateWallet(t *testing.T) {
	s := startTestServer(t)

	// When
	status, body, err := s.sendRequest("POST", "/wallet/create", "", types.CreateWalletRequest{WalletName: "new.jmdat", Password: "pw", WalletType: "sw"})
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusCreated, status)
	resp := types.CreateWalletResponse{}
	require.Nil(t, json.Unmarshal(body, &resp))
	require.Equal(t, "new.jmdat", resp.WalletName)
	require.Len(t, strings.Fields(resp.Seedphrase), 12)
	require.NotEmpty(t, resp.Token)

	// When
	status, body, err = s.sendRequest("POST", "/wallet/create", "", types.CreateWalletRequest{WalletName: walletName, Password: "pw"})
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, types.MsgWalletExists, errorMessage(t, body))

	// When
	status, _, err = s.sendRequest("GET", "/wallet/all", "", nil)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []string{"new.jmdat", walletName}, s.Daemon().ListWallets().Wallets)
}

func Test_AuthRequired(t *testing.T) {
	s := startTestServer(t)

	for _, path := range []string{"/lock", "/display", "/utxos", "/address/new/0", "/maker/stop"} {
		// When
		status, body, err := s.sendRequest("GET", "/wallet/"+walletName+path, "", nil)
		// Then
		require.Nil(t, err)
		require.Equal(t, http.StatusUnauthorized, status, path)
		require.Equal(t, types.MsgInvalidCredentials, errorMessage(t, body))
	}
}

func Test_Session(t *testing.T) {
	s := startTestServer(t)

	// When
	_, body, err := s.sendRequest("GET", "/session", "", nil)
	// Then
	require.Nil(t, err)
	resp := types.SessionResponse{}
	require.Nil(t, json.Unmarshal(body, &resp))
	require.False(t, resp.Session)
	require.Equal(t, "None", resp.WalletName)

	// When
	token := s.unlock(t)
	_, body, err = s.sendRequest("GET", "/session", token, nil)
	// Then
	require.Nil(t, err)
	require.Nil(t, json.Unmarshal(body, &resp))
	require.True(t, resp.Session)
	require.Equal(t, walletName, resp.WalletName)
}

func Test_MakerLifecycle(t *testing.T) {
	s := startTestServer(t)
	token := s.unlock(t)
	offer := types.MakerStartRequest{TxFee: 0, CjfeeA: 500, CjfeeR: "0.00002", OrderType: "sw0reloffer", MinSize: 100000}

	// When
	status, _, err := s.sendRequest("POST", "/wallet/"+walletName+"/maker/start", token, offer)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusAccepted, status)

	// When
	status, body, err := s.sendRequest("POST", "/wallet/"+walletName+"/maker/start", token, offer)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, types.MsgServiceAlreadyStarted, errorMessage(t, body))

	// When
	status, _, err = s.sendRequest("GET", "/wallet/"+walletName+"/maker/stop", token, nil)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusAccepted, status)

	// When
	status, body, err = s.sendRequest("GET", "/wallet/"+walletName+"/maker/stop", token, nil)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, types.MsgServiceNotStarted, errorMessage(t, body))
}

func Test_LockWallet(t *testing.T) {
	s := startTestServer(t)
	token := s.unlock(t)

	// When
	status, body, err := s.sendRequest("GET", "/wallet/"+walletName+"/lock", token, nil)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, status)
	resp := types.LockWalletResponse{}
	require.Nil(t, json.Unmarshal(body, &resp))
	require.False(t, resp.AlreadyLocked)

	// When
	status, _, err = s.sendRequest("GET", "/wallet/"+walletName+"/utxos", token, nil)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
}

func Test_InvalidRequestFormat(t *testing.T) {
	s := startTestServer(t)
	token := s.unlock(t)

	// When
	status, body, err := s.sendRequest("POST", "/wallet/"+walletName+"/taker/direct-send", token, "not an object")
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, types.MsgInvalidRequestFormat, errorMessage(t, body))

	// When
	status, _, err = s.sendRequest("GET", "/wallet/"+walletName+"/address/new/x", token, nil)
	// Then
	require.Nil(t, err)
	require.Equal(t, http.StatusBadRequest, status)
}

func dialWS(t *testing.T, s *testServer) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.http.URL, "http")+WebsocketPath, nil)
	require.Nil(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func Test_Websocket(t *testing.T) {
	s := startTestServer(t)
	token := s.unlock(t)
	conn := dialWS(t, s)
	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte(token)))
	ack := types.AuthAck{}
	require.Nil(t, conn.ReadJSON(&ack))
	require.Equal(t, types.AuthAck{Type: types.AuthAckType, Authenticated: true}, ack)

	// When
	_, _, err := s.sendRequest("POST", "/wallet/"+walletName+"/taker/direct-send", token,
		types.DirectSendRequest{Mixdepth: 0, AmountSats: 10000, Destination: "bcrt1qdest"})
	require.Nil(t, err)
	require.Nil(t, s.Notify(map[string]interface{}{"type": "custom"}))

	// Then
	frame := map[string]interface{}{}
	require.Nil(t, conn.ReadJSON(&frame))
	require.Equal(t, "tx", frame["type"])
	require.Nil(t, conn.ReadJSON(&frame))
	require.Equal(t, "custom", frame["type"])

	// When
	s.Stop()

	// Then
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func Test_Websocket_BadToken(t *testing.T) {
	s := startTestServer(t)
	conn := dialWS(t, s)

	// When
	require.Nil(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))

	// Then
	ack := types.AuthAck{}
	require.Nil(t, conn.ReadJSON(&ack))
	require.False(t, ack.Authenticated)
	require.Equal(t, types.MsgInvalidCredentials, ack.Error)
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}
