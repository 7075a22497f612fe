package wikibase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Endpoint:  server.URL,
		Token:     "token-123",
		UserAgent: "qsd-test",
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestConfigValidate(t *testing.T) {
	if err := (&Config{Token: "t"}).Validate(); err == nil {
		t.Error("missing endpoint should fail")
	}
	if err := (&Config{Endpoint: "http://x"}).Validate(); err == nil {
		t.Error("missing token should fail")
	}
	if err := (&Config{Endpoint: "http://x", Token: "t"}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestClient_Headers(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "qsd-test" {
			t.Errorf("User-Agent = %q", got)
		}
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.Write([]byte(`{"id":"Q100"}`))
	})

	id, _, err := client.CreateItem(context.Background(), &domain.Document{})
	if err != nil {
		t.Fatal(err)
	}
	if id != "Q100" {
		t.Errorf("id = %s", id)
	}
}

func TestClient_UserErrorCarriesRemoteCode(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"invalid-value","message":"the value is malformed"}`))
	})

	_, _, err := client.CreateItem(context.Background(), &domain.Document{})
	cmdErr, ok := err.(*domain.CommandError)
	if !ok {
		t.Fatalf("err = %T %v", err, err)
	}
	if cmdErr.Kind != domain.ErrAPIUserError {
		t.Errorf("kind = %s", cmdErr.Kind)
	}
	if !strings.Contains(cmdErr.Message, "invalid-value") || !strings.Contains(cmdErr.Message, "malformed") {
		t.Errorf("message = %q", cmdErr.Message)
	}
}

func TestClient_ServerError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`boom`))
	})

	_, err := client.CreateStatement(context.Background(), domain.NewEntityRef("Q42"), domain.Statement{Property: "P31", Value: domain.EntityValue("Q5")})
	cmdErr, ok := err.(*domain.CommandError)
	if !ok || cmdErr.Kind != domain.ErrAPIServerError {
		t.Fatalf("err = %v", err)
	}
	// Unparseable body falls back to the HTTP status
	if !strings.Contains(cmdErr.Message, "500") {
		t.Errorf("message = %q", cmdErr.Message)
	}
}

func TestClient_EntityPaths(t *testing.T) {
	var paths []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	client.GetDocument(ctx, domain.NewEntityRef("Q42"))
	client.CreateStatement(ctx, domain.NewEntityRef("P31"), domain.Statement{Property: "P31", Value: domain.EntityValue("Q5")})
	client.DeleteStatement(ctx, "Q42$abc")
	client.SetLabel(ctx, domain.NewEntityRef("Q42"), "en", "x")
	client.DeleteSitelink(ctx, domain.NewEntityRef("Q42"), "enwiki")

	want := []string{
		"GET /entities/items/Q42",
		"POST /entities/properties/P31/statements",
		"DELETE /statements/Q42$abc",
		"PATCH /entities/items/Q42/labels",
		"DELETE /entities/items/Q42/sitelinks/enwiki",
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestClient_GetStatements(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("property"); got != "P31" {
			t.Errorf("property query = %q", got)
		}
		w.Write([]byte(`{"P31":[{"id":"Q42$a","property":"P31","value":{"type":"wikibase-entityid","value":{"entity-type":"item","id":"Q5"}}}]}`))
	})

	statements, err := client.GetStatements(context.Background(), domain.NewEntityRef("Q42"), "P31")
	if err != nil {
		t.Fatal(err)
	}
	if len(statements) != 1 || statements[0].ID != "Q42$a" {
		t.Fatalf("statements = %+v", statements)
	}
	if !statements[0].Value.Equal(domain.EntityValue("Q5")) {
		t.Errorf("value = %+v", statements[0].Value)
	}
}

func TestClient_DataTypeMemoized(t *testing.T) {
	calls := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"id":"P31","data_type":"wikibase-item"}`))
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dt, err := client.DataType(ctx, "P31")
		if err != nil {
			t.Fatal(err)
		}
		if dt != "wikibase-item" {
			t.Errorf("data type = %s", dt)
		}
	}
	if calls != 1 {
		t.Errorf("remote calls = %d, want 1", calls)
	}
}

func TestClient_LabelCacheInvalidatedByMutation(t *testing.T) {
	gets := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
		}
		w.Write([]byte(`{"en":"Douglas Adams"}`))
	})
	ctx := context.Background()
	ref := domain.NewEntityRef("Q42")

	client.Labels(ctx, ref)
	client.Labels(ctx, ref)
	if gets != 1 {
		t.Fatalf("label fetches = %d, want 1", gets)
	}

	// A label write drops the cache for that entity
	if _, err := client.SetLabel(ctx, ref, "en", "changed"); err != nil {
		t.Fatal(err)
	}
	client.Labels(ctx, ref)
	if gets != 2 {
		t.Errorf("label fetches after mutation = %d, want 2", gets)
	}
}

func TestClient_IsAutoconfirmed(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profile" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"username":"alice","groups":["user","autoconfirmed"]}`))
	})

	ok, err := client.IsAutoconfirmed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("alice should be autoconfirmed")
	}

	plain := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username":"bob","groups":["user"]}`))
	})
	ok, err = plain.IsAutoconfirmed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("bob should not be autoconfirmed")
	}
}
