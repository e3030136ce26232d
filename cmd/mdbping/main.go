// Command mdbping is a tiny smoke-test binary: dial a server, run the
// protocol-10 handshake, send PING, and print the negotiated server
// version. It exists to exercise mdbsession end to end the way the
// teacher's cmd/dbbouncer wired its components together at startup,
// scaled down to a single connection with no proxying.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dbbouncer/mdbclient/mdbsession"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:3306", "host:port of the MariaDB/MySQL server")
	network := flag.String("network", "tcp", "tcp or unix")
	user := flag.String("user", "root", "username")
	password := flag.String("password", "", "password")
	database := flag.String("database", "", "initial schema, optional")
	timeout := flag.Duration("timeout", 10*time.Second, "connect timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := mdbsession.Config{
		Network:        *network,
		Address:        *addr,
		Username:       *user,
		Password:       *password,
		Database:       *database,
		ConnectTimeout: *timeout,
		ReadTimeout:    *timeout,
		Logger:         logger,
	}

	sess, err := mdbsession.Dial(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mdbping: dial failed: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	start := time.Now()
	if err := sess.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "mdbping: ping failed: %v\n", err)
		os.Exit(1)
	}

	ctx := sess.Context()
	fmt.Printf("connected to %s\n", *addr)
	fmt.Printf("server version: %s (mariadb=%v)\n", ctx.ServerVersion.Raw, ctx.ServerVersion.IsMariaDB)
	fmt.Printf("thread id: %d\n", ctx.ThreadID)
	fmt.Printf("ping round-trip: %s\n", time.Since(start))
}
