package client

import (
	"github.com/PulpCattel/jmrpc/transport"
	"net/http"
)

type endpoint struct {
	method string
	route  string
	auth   transport.AuthPolicy
}

var (
	listWallets   = endpoint{http.MethodGet, "/api/v1/wallet/all", transport.AuthOptional}
	lockWallet    = endpoint{http.MethodGet, "/api/v1/wallet/{walletname}/lock", transport.AuthRequired}
	displayWallet = endpoint{http.MethodGet, "/api/v1/wallet/{walletname}/display", transport.AuthRequired}
	getAddress    = endpoint{http.MethodGet, "/api/v1/wallet/{walletname}/address/new/{mixdepth}", transport.AuthRequired}
	listUtxos     = endpoint{http.MethodGet, "/api/v1/wallet/{walletname}/utxos", transport.AuthRequired}
	directSend    = endpoint{http.MethodPost, "/api/v1/wallet/{walletname}/taker/direct-send", transport.AuthRequired}
	doCoinjoin    = endpoint{http.MethodPost, "/api/v1/wallet/{walletname}/taker/coinjoin", transport.AuthRequired}
	getSession    = endpoint{http.MethodGet, "/api/v1/session", transport.AuthOptional}
	makerStart    = endpoint{http.MethodPost, "/api/v1/wallet/{walletname}/maker/start", transport.AuthRequired}
	makerStop     = endpoint{http.MethodGet, "/api/v1/wallet/{walletname}/maker/stop", transport.AuthRequired}
)

func (e endpoint) request(vars map[string]string, params interface{}) transport.Request {
	return transport.Request{
		Method: e.method,
		Route:  e.route,
		Path:   transport.ExpandRoute(e.route, vars),
		Params: params,
		Auth:   e.auth,
	}
}

func wallet(name string) map[string]string {
	return map[string]string{"walletname": name}
}
