package types

import "github.com/pkg/errors"

type CreateWalletRequest struct {
	WalletName string `json:"walletname"`
	Password   string `json:"password"`
	WalletType string `json:"wallettype"`
}

type UnlockWalletRequest struct {
	Password string `json:"password"`
}

type DirectSendRequest struct {
	Mixdepth    int    `json:"mixdepth"`
	AmountSats  int64  `json:"amount_sats"`
	Destination string `json:"destination"`
}

type DoCoinjoinRequest struct {
	Mixdepth       int    `json:"mixdepth"`
	Amount         int64  `json:"amount"`
	Counterparties int    `json:"counterparties"`
	Destination    string `json:"destination"`
}

type MakerStartRequest struct {
	TxFee     int64  `json:"txfee"`
	CjfeeA    int64  `json:"cjfee_a"`
	CjfeeR    string `json:"cjfee_r"`
	OrderType string `json:"ordertype"`
	MinSize   int64  `json:"minsize"`
}

type ListWalletsResponse struct {
	Wallets []string `json:"wallets"`
}

type CreateWalletResponse struct {
	WalletName    string `json:"walletname"`
	AlreadyLoaded bool   `json:"already_loaded"`
	Token         string `json:"token"`
	WsToken       string `json:"ws_token,omitempty"`
	Seedphrase    string `json:"seedphrase"`
}

type UnlockWalletResponse struct {
	WalletName    string `json:"walletname"`
	AlreadyLoaded bool   `json:"already_loaded"`
	Token         string `json:"token"`
	WsToken       string `json:"ws_token,omitempty"`
}

type LockWalletResponse struct {
	WalletName    string `json:"walletname"`
	AlreadyLocked bool   `json:"already_locked"`
}

type DisplayWalletResponse struct {
	WalletName string                 `json:"walletname"`
	WalletInfo map[string]interface{} `json:"walletinfo"`
}

type GetAddressResponse struct {
	Address string `json:"address"`
}

type ListUtxosResponse struct {
	Utxos []map[string]interface{} `json:"utxos"`
}

type DirectSendResponse struct {
	WalletName string                 `json:"walletname"`
	TxInfo     map[string]interface{} `json:"txinfo"`
}

type DoCoinjoinResponse struct {
	CoinjoinStarted bool `json:"coinjoin_started"`
}

type SessionResponse struct {
	Session           bool   `json:"session"`
	MakerRunning      bool   `json:"maker_running"`
	CoinjoinInProcess bool   `json:"coinjoin_in_process"`
	WalletName        string `json:"wallet_name"`
}

type MakerResponse struct {
	WalletName string `json:"walletname"`
}

// ErrorResponse is the body of every non-2xx reply of the wallet daemon.
type ErrorResponse struct {
	Message string `json:"message"`
}

// AuthAckType is the type of the frame acknowledging websocket authentication.
const AuthAckType = "auth_ack"

type AuthAck struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}

// Error messages used by the wallet daemon.
const (
	MsgInvalidCredentials    = "Invalid credentials."
	MsgNoWalletFound         = "No wallet loaded."
	MsgBackendNotReady       = "Backend daemon not available"
	MsgInvalidRequestFormat  = "Invalid request format."
	MsgServiceAlreadyStarted = "Service already started."
	MsgWalletAlreadyUnlocked = "Wallet already unlocked."
	MsgServiceNotStarted     = "Service cannot be stopped as it is not running."
	MsgWalletExists          = "Wallet file cannot be overwritten."
)

var NoDataFound = errors.New("no data found")
