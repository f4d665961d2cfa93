package solana

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMetadataImageURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"name":"Dolphin Ai","image":"https://cdn.example.com/dolphin.png"}`))
	}))
	defer server.Close()

	f := NewMetadataFetcher(0)
	img, err := f.ImageURL(context.Background(), server.URL+"/meta.json")
	if err != nil {
		t.Fatalf("image url: %v", err)
	}
	if img != "https://cdn.example.com/dolphin.png" {
		t.Fatalf("unexpected image %q", img)
	}

	if _, err := f.ImageURL(context.Background(), server.URL+"/missing"); err == nil {
		t.Fatalf("expected error for missing document")
	}
	if _, err := f.ImageURL(context.Background(), "ipfs://Qm"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestTokenReaderUsesSupply(t *testing.T) {
	backend := newFakeBackend()
	mint := testKey(1)
	backend.supplies[mint] = TokenAmount{Raw: bigInt("1000000000000000"), Decimals: 6}
	r := NewTokenReader(backend, nil, nil)

	info, err := r.TokenInfo(context.Background(), mint.String())
	if err != nil {
		t.Fatalf("token info: %v", err)
	}
	if info.Decimals != 6 || info.TotalSupply.String() != "1000000000000000" {
		t.Fatalf("unexpected info: %+v", info)
	}

	delete(backend.supplies, mint)
	if _, err := r.TokenInfo(context.Background(), mint.String()); err != nil {
		t.Fatalf("cached token info should not hit the backend: %v", err)
	}
}
