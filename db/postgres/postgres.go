package postgres

import (
	"database/sql"
	"embed"
	"fmt"
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/types"
	log "github.com/inconshreveable/log15"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"io/fs"
	"strings"
	"time"
)

const (
	initQuery                 = "init.sql"
	saveSessionQuery          = "saveSession.sql"
	getSessionQuery           = "getSession.sql"
	deleteSessionQuery        = "deleteSession.sql"
	clearExpiredSessionsQuery = "clearExpiredSessions.sql"
)

//go:embed scripts/*.sql
var scripts embed.FS

type accessor struct {
	db      *sql.DB
	queries map[string]string
}

// NewAccessor connects to postgres and creates the sessions table if needed.
func NewAccessor(connStr string) (db.Accessor, error) {
	sqlDb, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	queries, err := readQueries(scripts)
	if err != nil {
		sqlDb.Close()
		return nil, err
	}
	a := &accessor{
		db:      sqlDb,
		queries: queries,
	}
	if err := a.init(); err != nil {
		sqlDb.Close()
		return nil, errors.Wrap(err, "unable to initialize postgres connection")
	}
	return a, nil
}

func readQueries(scripts fs.FS) (map[string]string, error) {
	files, err := fs.ReadDir(scripts, "scripts")
	if err != nil {
		return nil, errors.Wrap(err, "read scripts")
	}
	queries := make(map[string]string)
	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		bytes, err := fs.ReadFile(scripts, "scripts/"+file.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read script %s", file.Name())
		}
		queries[file.Name()] = string(bytes)
		log.Debug(fmt.Sprintf("Read query %s", file.Name()))
	}
	return queries, nil
}

func (a *accessor) init() error {
	if err := a.db.Ping(); err != nil {
		return err
	}
	if _, err := a.db.Exec(a.getQuery(initQuery)); err != nil {
		return err
	}
	return nil
}

func (a *accessor) getQuery(name string) string {
	if query, present := a.queries[name]; present {
		return query
	}
	panic(fmt.Sprintf("There is no query '%s'", name))
}

func (a *accessor) SaveSession(data db.SessionData) error {
	if data.Wallet == "" {
		return errors.New("empty wallet name")
	}
	var expiresAt sql.NullTime
	if !data.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: data.ExpiresAt, Valid: true}
	}
	_, err := a.db.Exec(a.getQuery(saveSessionQuery),
		data.Wallet, data.SessionToken, data.WsToken, data.Timestamp, expiresAt)
	return err
}

func (a *accessor) GetSession(wallet string) (db.SessionData, error) {
	res := db.SessionData{Wallet: wallet}
	var expiresAt sql.NullTime
	err := a.db.QueryRow(a.getQuery(getSessionQuery), wallet, time.Now()).Scan(
		&res.SessionToken,
		&res.WsToken,
		&res.Timestamp,
		&expiresAt,
	)
	if err == sql.ErrNoRows {
		return db.SessionData{}, types.NoDataFound
	}
	if err != nil {
		return db.SessionData{}, err
	}
	if expiresAt.Valid {
		res.ExpiresAt = expiresAt.Time
	}
	return res, nil
}

func (a *accessor) DeleteSession(wallet string) error {
	_, err := a.db.Exec(a.getQuery(deleteSessionQuery), wallet)
	return err
}

func (a *accessor) ClearExpiredSessions(timestamp time.Time) error {
	_, err := a.db.Exec(a.getQuery(clearExpiredSessionsQuery), timestamp)
	return err
}

func (a *accessor) Close() error {
	return a.db.Close()
}
