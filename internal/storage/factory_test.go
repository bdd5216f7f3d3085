package storage

import "testing"

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if store == nil {
		t.Fatal("expected non-nil store")
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}

func TestNewStorePostgresNeedsDSN(t *testing.T) {
	store, err := NewStore("postgres", "")
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	if err := store.Init(t.Context()); err == nil {
		t.Fatal("expected init error without a data source")
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestDialectRebind(t *testing.T) {
	pg := dialect{positional: true}
	got := pg.rebind("SELECT payload FROM t WHERE a = ? AND b = ?")
	if got != "SELECT payload FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	lite := dialect{}
	if lite.rebind("a = ?") != "a = ?" {
		t.Fatal("sqlite queries must keep ? placeholders")
	}
}

func TestPostgresStoreDialect(t *testing.T) {
	store := NewPostgresStore("postgres://localhost/ctpy")
	d := store.dialect
	if d.driver != "pgx" || d.blobType != "BYTEA" || d.maxOpenConns != 0 {
		t.Fatalf("unexpected postgres dialect: %+v", d)
	}
	got := d.rebind("INSERT INTO t (id, payload) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET payload = excluded.payload")
	want := "INSERT INTO t (id, payload) VALUES ($1, $2) ON CONFLICT(id) DO UPDATE SET payload = excluded.payload"
	if got != want {
		t.Fatalf("unexpected rebind:\n got %s\nwant %s", got, want)
	}
	if d.rebind("SELECT 1") != "SELECT 1" {
		t.Fatal("queries without placeholders must be unchanged")
	}
}
