//go:build integration

// Package integration runs mdbclient against a real MariaDB container,
// the way mickamy-sql-tap's proxy tests launch MySQL through
// testcontainers-go rather than faking the wire protocol (spec 8
// "Testable properties", concrete scenario 1). Requires Docker; build
// with `-tags integration`.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/dbbouncer/mdbclient/mdbpool"
	"github.com/dbbouncer/mdbclient/mdbsession"
	"github.com/dbbouncer/mdbclient/mdbtype"
)

const (
	testUser     = "root"
	testPassword = "test"
	testDB       = "test"
)

func startMariaDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := mysql.Run(ctx, "mariadb:11",
		mysql.WithDatabase(testDB),
		mysql.WithUsername(testUser),
		mysql.WithPassword(testPassword),
	)
	if err != nil {
		t.Fatalf("start mariadb container: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate mariadb container: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("get host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("get mapped port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func dial(t *testing.T, addr string) *mdbsession.Session {
	t.Helper()
	sess, err := mdbsession.Dial(mdbsession.Config{
		Network:        "tcp",
		Address:        addr,
		Username:       testUser,
		Password:       testPassword,
		Database:       testDB,
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    15 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

// TestHandshakeAndPing exercises the full protocol-10 handshake,
// mysql_native_password authentication and COM_PING round trip (spec 4.2
// "Handshake").
func TestHandshakeAndPing(t *testing.T) {
	addr := startMariaDB(t)
	sess := dial(t, addr)

	if err := sess.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !sess.Context().ServerVersion.IsMariaDB {
		t.Errorf("expected MariaDB server version, got %q", sess.Context().ServerVersion.Raw)
	}
}

// TestFloatColumn follows spec 8 scenario 1: FLOAT columns read back from
// a text-protocol row and decoded as float64 and as int32.
func TestFloatColumn(t *testing.T) {
	addr := startMariaDB(t)
	sess := dial(t, addr)

	if _, err := sess.Query("CREATE TABLE float_codec (t1 FLOAT, t2 FLOAT, t3 FLOAT, t4 FLOAT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := sess.Query("INSERT INTO float_codec VALUES (0, 105.21, -1.6, NULL)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rs, err := sess.Query("SELECT t1, t2, t3, t4 FROM float_codec")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !rs.Next() {
		t.Fatal("expected one row")
	}
	row := rs.Row()

	col0, err := row.Column(0)
	if err != nil {
		t.Fatalf("column 0: %v", err)
	}
	text0, err := row.RawText(0)
	if err != nil {
		t.Fatalf("raw text 0: %v", err)
	}
	if v, err := mdbtype.DecodeFloat64(col0, string(text0)); err != nil || v != 0 {
		t.Errorf("t1 as float64 = %v, %v; want 0, nil", v, err)
	}
	if v, err := mdbtype.DecodeInt32(col0, string(text0)); err != nil || v != 0 {
		t.Errorf("t1 as int32 = %v, %v; want 0, nil", v, err)
	}

	col1, _ := row.Column(1)
	text1, _ := row.RawText(1)
	if v, err := mdbtype.DecodeFloat64(col1, string(text1)); err != nil || v != 105.21 {
		t.Errorf("t2 as float64 = %v, %v; want 105.21, nil", v, err)
	}
	if v, err := mdbtype.DecodeInt32(col1, string(text1)); err != nil || v != 105 {
		t.Errorf("t2 as int32 = %v, %v; want 105, nil", v, err)
	}

	col2, _ := row.Column(2)
	text2, _ := row.RawText(2)
	if v, err := mdbtype.DecodeFloat64(col2, string(text2)); err != nil || v != -1.6 {
		t.Errorf("t3 as float64 = %v, %v; want -1.6, nil", v, err)
	}
	if v, err := mdbtype.DecodeInt32(col2, string(text2)); err != nil || v != -1 {
		t.Errorf("t3 as int32 = %v, %v; want -1, nil", v, err)
	}

	isNull, err := row.IsNull(3)
	if err != nil || !isNull {
		t.Errorf("t4 IsNull = %v, %v; want true, nil", isNull, err)
	}

	if _, err := mdbtype.DecodeTime(col0, string(text0), time.UTC); err == nil {
		t.Error("expected t1 decode-as-Time to fail with a cannot-decode error")
	}
}

// TestPoolAcquireAndExecute drives a Pool through fill, acquire, prepared
// execute and return (spec 4.4 "Pool").
func TestPoolAcquireAndExecute(t *testing.T) {
	addr := startMariaDB(t)

	pool := mdbpool.New(mdbpool.Config{
		Tag: "integration",
		Session: mdbsession.Config{
			Network:        "tcp",
			Address:        addr,
			Username:       testUser,
			Password:       testPassword,
			Database:       testDB,
			ConnectTimeout: 15 * time.Second,
			ReadTimeout:    15 * time.Second,
		},
		MinPoolSize:    1,
		MaxPoolSize:    4,
		ConnectTimeout: 15 * time.Second,
	})
	t.Cleanup(func() { _ = pool.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	stmt, err := sess.Prepare("SELECT ? + ?")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	rs, err := sess.Execute(stmt, []any{int64(2), int64(3)}, "SELECT ? + ?")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !rs.Next() {
		t.Fatal("expected one row")
	}

	pool.Return(sess)

	stats := pool.Stats()
	if stats.Total < 1 {
		t.Errorf("pool total = %d, want >= 1", stats.Total)
	}
}
