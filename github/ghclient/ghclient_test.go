/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ghclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCacheReusesClients(t *testing.T) {
	t.Parallel()
	c, err := NewCache()
	if err != nil {
		t.Fatalf("NewCache() = %v", err)
	}
	ctx := context.Background()

	a, err := c.Get(ctx, "token-a")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	again, err := c.Get(ctx, " token-a ")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if a != again {
		t.Error("Get() built a second client for the same token")
	}
	b, err := c.Get(ctx, "token-b")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if a == b {
		t.Error("Get() shared a client across tokens")
	}
	if _, err := c.Get(ctx, ""); !errors.Is(err, ErrNoToken) {
		t.Errorf("Get(\"\") = %v, wanted ErrNoToken", err)
	}
}

func TestEnterpriseURLsAndAuth(t *testing.T) {
	t.Parallel()
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"full_name":"octocat/hello"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewCache(WithEnterpriseURLs(srv.URL, srv.URL+"/graphql"))
	if err != nil {
		t.Fatalf("NewCache() = %v", err)
	}
	cl, err := c.Get(context.Background(), "s3cret")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	repo, _, err := cl.REST.Repositories.Get(context.Background(), "octocat", "hello")
	if err != nil {
		t.Fatalf("Repositories.Get() = %v", err)
	}
	if repo.GetFullName() != "octocat/hello" {
		t.Errorf("FullName: got = %q", repo.GetFullName())
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("Authorization: got = %q", gotAuth)
	}
}

func TestStaticToken(t *testing.T) {
	t.Parallel()
	tok, err := StaticToken("abc")(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("StaticToken() = %q, %v", tok, err)
	}
	if _, err := StaticToken("")(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("StaticToken(\"\") = %v, wanted ErrNoToken", err)
	}
}

func TestAppInstallationTokenMissingKey(t *testing.T) {
	t.Parallel()
	if _, err := AppInstallationToken(1, 2, t.TempDir()+"/missing.pem"); err == nil {
		t.Error("AppInstallationToken() = nil, wanted error")
	}
}
