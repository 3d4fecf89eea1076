package client

import (
	"context"
	"github.com/PulpCattel/jmrpc/transport"
	"github.com/PulpCattel/jmrpc/types"
	"strconv"
)

func (s *Session) call(ctx context.Context, e endpoint, vars map[string]string, params interface{}) (*types.Response, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.transport.Do(ctx, e.request(vars, params))
}

func (s *Session) ListWallets(ctx context.Context) (*types.Response, error) {
	return s.call(ctx, listWallets, nil, nil)
}

// CreateWallet creates and unlocks a wallet. The response carries the
// seedphrase. If the session tokens were stored but the websocket refused
// them, the response is returned together with an *core.AuthenticationError.
func (s *Session) CreateWallet(ctx context.Context, walletName string, password []byte, walletType string) (*types.Response, error) {
	return s.unlockOrCreate(ctx, transport.Credentials{Wallet: walletName, Secret: password, WalletType: walletType}, true)
}

// UnlockWallet unlocks an existing wallet, with the same websocket
// semantics as CreateWallet.
func (s *Session) UnlockWallet(ctx context.Context, walletName string, password []byte) (*types.Response, error) {
	return s.unlockOrCreate(ctx, transport.Credentials{Wallet: walletName, Secret: password}, false)
}

func (s *Session) unlockOrCreate(ctx context.Context, creds transport.Credentials, create bool) (*types.Response, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	resp, err := s.transport.UnlockOrCreate(ctx, creds, create)
	if err != nil {
		return resp, err
	}
	s.markUnlocked()
	if err := s.authenticateChannel(ctx); err != nil {
		return resp, err
	}
	return resp, nil
}

// LockWallet locks the wallet and forgets the session tokens.
func (s *Session) LockWallet(ctx context.Context, walletName string) (*types.Response, error) {
	resp, err := s.call(ctx, lockWallet, wallet(walletName), nil)
	if err != nil {
		return nil, err
	}
	s.auth.Clear()
	return resp, nil
}

func (s *Session) DisplayWallet(ctx context.Context, walletName string) (*types.Response, error) {
	return s.call(ctx, displayWallet, wallet(walletName), nil)
}

func (s *Session) GetAddress(ctx context.Context, walletName string, mixdepth int) (*types.Response, error) {
	vars := wallet(walletName)
	vars["mixdepth"] = strconv.Itoa(mixdepth)
	return s.call(ctx, getAddress, vars, nil)
}

func (s *Session) ListUtxos(ctx context.Context, walletName string) (*types.Response, error) {
	return s.call(ctx, listUtxos, wallet(walletName), nil)
}

func (s *Session) DirectSend(ctx context.Context, walletName string, request types.DirectSendRequest) (*types.Response, error) {
	return s.call(ctx, directSend, wallet(walletName), request)
}

func (s *Session) DoCoinjoin(ctx context.Context, walletName string, request types.DoCoinjoinRequest) (*types.Response, error) {
	return s.call(ctx, doCoinjoin, wallet(walletName), request)
}

// GetSession reports the daemon state. The token is sent when one is held.
func (s *Session) GetSession(ctx context.Context) (*types.Response, error) {
	return s.call(ctx, getSession, nil, nil)
}

func (s *Session) MakerStart(ctx context.Context, walletName string, request types.MakerStartRequest) (*types.Response, error) {
	return s.call(ctx, makerStart, wallet(walletName), request)
}

func (s *Session) MakerStop(ctx context.Context, walletName string) (*types.Response, error) {
	return s.call(ctx, makerStop, wallet(walletName), nil)
}

// Raw calls an endpoint that has no dedicated method.
func (s *Session) Raw(ctx context.Context, method, path string, params interface{}, requiresAuth bool) (*types.Response, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.transport.Call(ctx, method, path, params, requiresAuth)
}
