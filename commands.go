package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PulpCattel/jmrpc/client"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/server"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/PulpCattel/jmrpc/ws"
	"github.com/awnumar/memguard"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"
	"time"
)

var passwordFlag = cli.StringFlag{
	Name:   "password",
	Usage:  "Wallet password",
	EnvVar: "JMRPC_PASSWORD",
}

var mixdepthFlag = cli.IntFlag{
	Name:  "mixdepth",
	Usage: "Mixdepth (account) to use",
}

type walletCall func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error)

func (a *cliApp) commands() []cli.Command {
	return []cli.Command{
		{
			Name:   "listwallets",
			Usage:  "List wallet files known to the daemon",
			Action: a.listWallets,
		},
		{
			Name:      "createwallet",
			Usage:     "Create and unlock a new wallet",
			ArgsUsage: "<wallet>",
			Flags: []cli.Flag{
				passwordFlag,
				cli.StringFlag{Name: "wallettype", Usage: "sw, sw-legacy or sw-fb", Value: "sw-fb"},
			},
			Action: a.createWallet,
		},
		{
			Name:      "unlock",
			Usage:     "Unlock a wallet and cache its session",
			ArgsUsage: "<wallet>",
			Flags:     []cli.Flag{passwordFlag},
			Action:    a.unlockWallet,
		},
		{
			Name:      "lock",
			Usage:     "Lock a wallet and forget its session",
			ArgsUsage: "<wallet>",
			Flags:     []cli.Flag{passwordFlag},
			Action:    a.lockWallet,
		},
		{
			Name:      "display",
			Usage:     "Show balances and addresses",
			ArgsUsage: "<wallet>",
			Flags:     []cli.Flag{passwordFlag},
			Action: a.walletAction(func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error) {
				return s.DisplayWallet(ctx, walletName)
			}),
		},
		{
			Name:      "getaddress",
			Usage:     "Get a new receive address",
			ArgsUsage: "<wallet>",
			Flags:     []cli.Flag{passwordFlag, mixdepthFlag},
			Action: a.walletAction(func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error) {
				return s.GetAddress(ctx, walletName, c.Int("mixdepth"))
			}),
		},
		{
			Name:      "listutxos",
			Usage:     "List wallet utxos",
			ArgsUsage: "<wallet>",
			Flags:     []cli.Flag{passwordFlag},
			Action: a.walletAction(func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error) {
				return s.ListUtxos(ctx, walletName)
			}),
		},
		{
			Name:      "directsend",
			Usage:     "Send without coinjoin",
			ArgsUsage: "<wallet>",
			Flags: []cli.Flag{
				passwordFlag,
				mixdepthFlag,
				cli.Int64Flag{Name: "amount", Usage: "Amount in satoshis"},
				cli.StringFlag{Name: "destination", Usage: "Destination address"},
			},
			Action: a.walletAction(func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error) {
				return s.DirectSend(ctx, walletName, types.DirectSendRequest{
					Mixdepth:    c.Int("mixdepth"),
					AmountSats:  c.Int64("amount"),
					Destination: c.String("destination"),
				})
			}),
		},
		{
			Name:      "coinjoin",
			Usage:     "Start a coinjoin as taker",
			ArgsUsage: "<wallet>",
			Flags: []cli.Flag{
				passwordFlag,
				mixdepthFlag,
				cli.Int64Flag{Name: "amount", Usage: "Amount in satoshis"},
				cli.IntFlag{Name: "counterparties", Usage: "Number of makers", Value: 9},
				cli.StringFlag{Name: "destination", Usage: "Destination address"},
			},
			Action: a.walletAction(func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error) {
				return s.DoCoinjoin(ctx, walletName, types.DoCoinjoinRequest{
					Mixdepth:       c.Int("mixdepth"),
					Amount:         c.Int64("amount"),
					Counterparties: c.Int("counterparties"),
					Destination:    c.String("destination"),
				})
			}),
		},
		{
			Name:      "session",
			Usage:     "Show the daemon state",
			ArgsUsage: "[wallet]",
			Action:    a.session,
		},
		{
			Name:      "maker-start",
			Usage:     "Start the yield generator",
			ArgsUsage: "<wallet>",
			Flags: []cli.Flag{
				passwordFlag,
				cli.Int64Flag{Name: "txfee", Usage: "Miner fee contribution in satoshis"},
				cli.Int64Flag{Name: "cjfee-a", Usage: "Absolute coinjoin fee in satoshis", Value: 500},
				cli.StringFlag{Name: "cjfee-r", Usage: "Relative coinjoin fee", Value: "0.00002"},
				cli.StringFlag{Name: "ordertype", Usage: "sw0reloffer or sw0absoffer", Value: "sw0reloffer"},
				cli.Int64Flag{Name: "minsize", Usage: "Minimum coinjoin size in satoshis", Value: 100000},
			},
			Action: a.walletAction(func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error) {
				return s.MakerStart(ctx, walletName, types.MakerStartRequest{
					TxFee:     c.Int64("txfee"),
					CjfeeA:    c.Int64("cjfee-a"),
					CjfeeR:    c.String("cjfee-r"),
					OrderType: c.String("ordertype"),
					MinSize:   c.Int64("minsize"),
				})
			}),
		},
		{
			Name:      "maker-stop",
			Usage:     "Stop the yield generator",
			ArgsUsage: "<wallet>",
			Flags:     []cli.Flag{passwordFlag},
			Action: a.walletAction(func(ctx context.Context, s *client.Session, walletName string, c *cli.Context) (*types.Response, error) {
				return s.MakerStop(ctx, walletName)
			}),
		},
		{
			Name:      "watch",
			Usage:     "Print daemon notifications until interrupted",
			ArgsUsage: "<wallet>",
			Flags:     []cli.Flag{passwordFlag},
			Action:    a.watch,
		},
		{
			Name:  "mockd",
			Usage: "Run an in-memory wallet daemon for local development",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "port", Usage: "Listen port, defaults to Mock.Port"},
				cli.DurationFlag{Name: "lifetime", Usage: "Token lifetime, defaults to Mock.TokenLifeTimeSec"},
				cli.StringFlag{Name: "wallet", Usage: "Wallet to preload"},
				passwordFlag,
			},
			Action: a.mockd,
		},
	}
}

func (a *cliApp) openCache() (db.Accessor, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	cache, err := initCache(a.config)
	if err != nil {
		return nil, errors.Wrap(err, "open session cache")
	}
	a.cache = cache
	return cache, nil
}

// withSession runs fn on a session that only connects the websocket when
// notifications are needed.
func (a *cliApp) withSession(notifications bool, fn func(*client.Session) error) error {
	cfg := a.config.Client()
	if !notifications {
		cfg.DisableWebsocket = true
	}
	return client.With(a.ctx, cfg, fn)
}

func walletArg(c *cli.Context) (string, error) {
	walletName := c.Args().First()
	if walletName == "" {
		return "", errors.New("wallet name is required")
	}
	return walletName, nil
}

func readPassword(c *cli.Context) *memguard.LockedBuffer {
	password := c.String("password")
	if password == "" {
		return nil
	}
	return memguard.NewBufferFromBytes([]byte(password))
}

func printResponse(resp *types.Response) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "format response")
	}
	fmt.Println(string(data))
	return nil
}

// authenticate unlocks with --password when given, otherwise restores the
// cached session.
func (a *cliApp) authenticate(c *cli.Context, s *client.Session, walletName string) error {
	cache, err := a.openCache()
	if err != nil {
		return err
	}
	password := readPassword(c)
	if password == nil {
		return restoreSession(a.ctx, cache, s, walletName)
	}
	defer password.Destroy()
	_, err = s.UnlockWallet(a.ctx, walletName, password.Bytes())
	if s.IsAuthenticated() {
		saveSession(cache, s, walletName)
	}
	return err
}

func (a *cliApp) walletAction(call walletCall) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		walletName, err := walletArg(c)
		if err != nil {
			return err
		}
		return a.withSession(false, func(s *client.Session) error {
			if err := a.authenticate(c, s, walletName); err != nil {
				return err
			}
			resp, err := call(a.ctx, s, walletName, c)
			if err != nil {
				return err
			}
			return printResponse(resp)
		})
	}
}

func (a *cliApp) listWallets(c *cli.Context) error {
	return a.withSession(false, func(s *client.Session) error {
		resp, err := s.ListWallets(a.ctx)
		if err != nil {
			return err
		}
		return printResponse(resp)
	})
}

func (a *cliApp) session(c *cli.Context) error {
	return a.withSession(false, func(s *client.Session) error {
		if walletName := c.Args().First(); walletName != "" {
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			if err := restoreSession(a.ctx, cache, s, walletName); err != nil {
				return err
			}
		}
		resp, err := s.GetSession(a.ctx)
		if err != nil {
			return err
		}
		return printResponse(resp)
	})
}

func (a *cliApp) unlockOrCreate(c *cli.Context, create bool) error {
	walletName, err := walletArg(c)
	if err != nil {
		return err
	}
	password := readPassword(c)
	if password == nil {
		return errors.New("password is required, pass --password or set JMRPC_PASSWORD")
	}
	defer password.Destroy()
	cache, err := a.openCache()
	if err != nil {
		return err
	}
	return a.withSession(false, func(s *client.Session) error {
		var resp *types.Response
		var err error
		if create {
			resp, err = s.CreateWallet(a.ctx, walletName, password.Bytes(), c.String("wallettype"))
		} else {
			resp, err = s.UnlockWallet(a.ctx, walletName, password.Bytes())
		}
		if err != nil {
			return err
		}
		saveSession(cache, s, walletName)
		return printResponse(resp)
	})
}

func (a *cliApp) createWallet(c *cli.Context) error {
	return a.unlockOrCreate(c, true)
}

func (a *cliApp) unlockWallet(c *cli.Context) error {
	return a.unlockOrCreate(c, false)
}

func (a *cliApp) lockWallet(c *cli.Context) error {
	walletName, err := walletArg(c)
	if err != nil {
		return err
	}
	return a.withSession(false, func(s *client.Session) error {
		if err := a.authenticate(c, s, walletName); err != nil {
			return err
		}
		resp, err := s.LockWallet(a.ctx, walletName)
		if err != nil {
			return err
		}
		forgetSession(a.cache, walletName)
		return printResponse(resp)
	})
}

func (a *cliApp) watch(c *cli.Context) error {
	walletName, err := walletArg(c)
	if err != nil {
		return err
	}
	return a.withSession(true, func(s *client.Session) error {
		if err := a.authenticate(c, s, walletName); err != nil {
			return err
		}
		if s.ChannelState() == ws.Disconnected {
			if err := s.ConnectWebsocket(a.ctx); err != nil {
				return err
			}
		}
		startSessionsCleaner(a.ctx, a.cache, a.config)
		stream, err := s.WsRead()
		if err != nil {
			return err
		}
		log.Info("Watching notifications", "wallet", walletName)
		for {
			notification, err := stream.Next(a.ctx)
			if errors.Is(err, ws.ErrMalformedFrame) {
				log.Warn("Skipping notification", "err", err)
				continue
			}
			var closed *core.ChannelClosedError
			if errors.As(err, &closed) {
				if closed.Reason == core.CloseAbnormal {
					return err
				}
				log.Info("Notification stream ended", "reason", closed.Reason)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(string(notification.Raw()))
		}
	})
}

func (a *cliApp) mockd(c *cli.Context) error {
	port := a.config.Mock.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}
	lifeTime := time.Second * time.Duration(a.config.Mock.TokenLifeTimeSec)
	if c.IsSet("lifetime") {
		lifeTime = c.Duration("lifetime")
	}
	password := ""
	if buf := readPassword(c); buf != nil {
		password = buf.String()
		buf.Destroy()
	}
	return server.Run(a.ctx, port, lifeTime, c.String("wallet"), password)
}
