package server

import (
	"crypto/rand"
	"fmt"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultWalletType = "sw-fb"

var seedWords = []string{
	"abandon", "ability", "able", "about", "above", "absent", "absorb", "abstract",
	"absurd", "abuse", "access", "accident", "account", "accuse", "achieve", "acid",
	"acoustic", "acquire", "across", "act", "action", "actor", "actress", "actual",
	"adapt", "add", "addict", "address", "adjust", "admit", "adult", "advance",
}

// Error is a daemon reply with a non-2xx status.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func newError(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Publisher receives the daemon's notifications.
type Publisher interface {
	Publish(payload interface{}) error
}

type wallet struct {
	name       string
	password   string
	walletType string
	addresses  int
}

// Daemon is an in-memory stand-in for the JoinMarket wallet daemon. At most
// one wallet is unlocked at a time and only its latest token is valid.
type Daemon struct {
	mutex             sync.Mutex
	secret            []byte
	lifeTime          time.Duration
	wallets           map[string]*wallet
	unlocked          string
	tokenID           string
	makerRunning      bool
	coinjoinInProcess bool
	publisher         Publisher
}

func NewDaemon(lifeTime time.Duration, publisher Publisher) *Daemon {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	return &Daemon{
		secret:    secret,
		lifeTime:  lifeTime,
		wallets:   make(map[string]*wallet),
		publisher: publisher,
	}
}

// AddWallet registers an existing wallet file.
func (d *Daemon) AddWallet(name, password string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.wallets[name] = &wallet{name: name, password: password, walletType: defaultWalletType}
}

func (d *Daemon) publish(payload interface{}) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(payload); err != nil {
		log.Error(fmt.Sprintf("Unable to publish notification: %v", err))
	}
}

func (d *Daemon) issueToken(walletName string) (string, error) {
	id := uuid.New().String()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        id,
		Subject:   walletName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d.lifeTime)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	d.unlocked = walletName
	d.tokenID = id
	return token, nil
}

func (d *Daemon) checkToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return d.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", newError(http.StatusUnauthorized, types.MsgInvalidCredentials)
	}
	if d.unlocked == "" || claims.ID != d.tokenID || claims.Subject != d.unlocked {
		return "", newError(http.StatusUnauthorized, types.MsgInvalidCredentials)
	}
	return claims.Subject, nil
}

// authorize checks that token belongs to the unlocked wallet named walletName.
func (d *Daemon) authorize(token, walletName string) error {
	unlocked, err := d.checkToken(token)
	if err != nil {
		return err
	}
	if unlocked != walletName {
		return newError(http.StatusNotFound, types.MsgNoWalletFound)
	}
	return nil
}

// ValidateToken reports whether token is the current token of the unlocked wallet.
func (d *Daemon) ValidateToken(token string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, err := d.checkToken(token)
	return err
}

func (d *Daemon) ListWallets() types.ListWalletsResponse {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	names := make([]string, 0, len(d.wallets))
	for name := range d.wallets {
		names = append(names, name)
	}
	sort.Strings(names)
	return types.ListWalletsResponse{Wallets: names}
}

func (d *Daemon) CreateWallet(request types.CreateWalletRequest) (types.CreateWalletResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if request.WalletName == "" || request.Password == "" {
		return types.CreateWalletResponse{}, newError(http.StatusBadRequest, types.MsgInvalidRequestFormat)
	}
	if _, ok := d.wallets[request.WalletName]; ok {
		return types.CreateWalletResponse{}, newError(http.StatusConflict, types.MsgWalletExists)
	}
	walletType := request.WalletType
	if walletType == "" {
		walletType = defaultWalletType
	}
	d.wallets[request.WalletName] = &wallet{name: request.WalletName, password: request.Password, walletType: walletType}
	d.stopServices()
	token, err := d.issueToken(request.WalletName)
	if err != nil {
		return types.CreateWalletResponse{}, err
	}
	return types.CreateWalletResponse{
		WalletName: request.WalletName,
		Token:      token,
		Seedphrase: generateSeedphrase(),
	}, nil
}

func (d *Daemon) UnlockWallet(walletName string, request types.UnlockWalletRequest) (types.UnlockWalletResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	w, ok := d.wallets[walletName]
	if !ok {
		return types.UnlockWalletResponse{}, newError(http.StatusNotFound, types.MsgNoWalletFound)
	}
	if w.password != request.Password {
		return types.UnlockWalletResponse{}, newError(http.StatusUnauthorized, types.MsgInvalidCredentials)
	}
	alreadyLoaded := d.unlocked == walletName
	if !alreadyLoaded {
		d.stopServices()
	}
	token, err := d.issueToken(walletName)
	if err != nil {
		return types.UnlockWalletResponse{}, err
	}
	return types.UnlockWalletResponse{
		WalletName:    walletName,
		AlreadyLoaded: alreadyLoaded,
		Token:         token,
	}, nil
}

func (d *Daemon) LockWallet(token, walletName string) (types.LockWalletResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	unlocked, err := d.checkToken(token)
	if err != nil {
		return types.LockWalletResponse{}, err
	}
	if unlocked != walletName {
		return types.LockWalletResponse{WalletName: walletName, AlreadyLocked: true}, nil
	}
	d.stopServices()
	d.unlocked = ""
	d.tokenID = ""
	return types.LockWalletResponse{WalletName: walletName}, nil
}

func (d *Daemon) DisplayWallet(token, walletName string) (types.DisplayWalletResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.authorize(token, walletName); err != nil {
		return types.DisplayWalletResponse{}, err
	}
	return types.DisplayWalletResponse{
		WalletName: walletName,
		WalletInfo: map[string]interface{}{
			"wallet_name":   walletName,
			"total_balance": "0.00000000",
			"accounts":      []interface{}{},
		},
	}, nil
}

func (d *Daemon) GetAddress(token, walletName string, mixdepth int) (types.GetAddressResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.authorize(token, walletName); err != nil {
		return types.GetAddressResponse{}, err
	}
	if mixdepth < 0 || mixdepth > 4 {
		return types.GetAddressResponse{}, newError(http.StatusBadRequest, types.MsgInvalidRequestFormat)
	}
	w := d.wallets[walletName]
	w.addresses++
	return types.GetAddressResponse{
		Address: fmt.Sprintf("bcrt1q%02d%032x", mixdepth, w.addresses),
	}, nil
}

func (d *Daemon) ListUtxos(token, walletName string) (types.ListUtxosResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.authorize(token, walletName); err != nil {
		return types.ListUtxosResponse{}, err
	}
	return types.ListUtxosResponse{Utxos: []map[string]interface{}{}}, nil
}

func (d *Daemon) DirectSend(token, walletName string, request types.DirectSendRequest) (types.DirectSendResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.authorize(token, walletName); err != nil {
		return types.DirectSendResponse{}, err
	}
	if request.AmountSats <= 0 || request.Destination == "" {
		return types.DirectSendResponse{}, newError(http.StatusBadRequest, types.MsgInvalidRequestFormat)
	}
	txid := strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	d.publish(map[string]interface{}{"type": "tx", "txid": txid, "amount_sats": request.AmountSats})
	return types.DirectSendResponse{
		WalletName: walletName,
		TxInfo: map[string]interface{}{
			"txid": txid,
			"outputs": []interface{}{
				map[string]interface{}{"address": request.Destination, "value_sats": request.AmountSats},
			},
		},
	}, nil
}

func (d *Daemon) DoCoinjoin(token, walletName string, request types.DoCoinjoinRequest) (types.DoCoinjoinResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.authorize(token, walletName); err != nil {
		return types.DoCoinjoinResponse{}, err
	}
	if request.Amount <= 0 || request.Counterparties <= 0 || request.Destination == "" {
		return types.DoCoinjoinResponse{}, newError(http.StatusBadRequest, types.MsgInvalidRequestFormat)
	}
	if d.makerRunning || d.coinjoinInProcess {
		return types.DoCoinjoinResponse{}, newError(http.StatusConflict, types.MsgServiceAlreadyStarted)
	}
	d.coinjoinInProcess = true
	d.publish(map[string]interface{}{"type": "coinjoin_state_update", "coinjoin_state": 1})
	return types.DoCoinjoinResponse{CoinjoinStarted: true}, nil
}

// Session never fails: an absent or stale token just reports no session.
func (d *Daemon) Session(token string) types.SessionResponse {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	resp := types.SessionResponse{
		MakerRunning:      d.makerRunning,
		CoinjoinInProcess: d.coinjoinInProcess,
		WalletName:        "None",
	}
	if token == "" {
		return resp
	}
	if walletName, err := d.checkToken(token); err == nil {
		resp.Session = true
		resp.WalletName = walletName
	}
	return resp
}

func (d *Daemon) MakerStart(token, walletName string, request types.MakerStartRequest) (types.MakerResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.authorize(token, walletName); err != nil {
		return types.MakerResponse{}, err
	}
	if request.OrderType == "" || request.MinSize < 0 || request.TxFee < 0 {
		return types.MakerResponse{}, newError(http.StatusBadRequest, types.MsgInvalidRequestFormat)
	}
	if d.makerRunning || d.coinjoinInProcess {
		return types.MakerResponse{}, newError(http.StatusConflict, types.MsgServiceAlreadyStarted)
	}
	d.makerRunning = true
	d.publish(map[string]interface{}{"type": "maker_state_update", "maker_running": true})
	return types.MakerResponse{WalletName: walletName}, nil
}

func (d *Daemon) MakerStop(token, walletName string) (types.MakerResponse, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if err := d.authorize(token, walletName); err != nil {
		return types.MakerResponse{}, err
	}
	if !d.makerRunning {
		return types.MakerResponse{}, newError(http.StatusConflict, types.MsgServiceNotStarted)
	}
	d.makerRunning = false
	d.publish(map[string]interface{}{"type": "maker_state_update", "maker_running": false})
	return types.MakerResponse{WalletName: walletName}, nil
}

// stopServices ends the maker and any coinjoin of the current wallet.
// Callers hold the mutex.
func (d *Daemon) stopServices() {
	d.makerRunning = false
	d.coinjoinInProcess = false
}

func generateSeedphrase() string {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		panic(err)
	}
	words := make([]string, len(raw))
	for i, b := range raw {
		words[i] = seedWords[int(b)%len(seedWords)]
	}
	return strings.Join(words, " ")
}
