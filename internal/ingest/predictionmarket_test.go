package ingest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/hadron/hadron/internal/config"
)

func writePKCS1Key(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func writePKCS8Key(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func TestLoadPrivateKeyAcceptsPKCS1(t *testing.T) {
	path := writePKCS1Key(t)
	if _, err := loadPrivateKey(path); err != nil {
		t.Fatalf("expected PKCS1 key to load, got %v", err)
	}
}

func TestLoadPrivateKeyAcceptsPKCS8(t *testing.T) {
	path := writePKCS8Key(t)
	if _, err := loadPrivateKey(path); err != nil {
		t.Fatalf("expected PKCS8 key to load, got %v", err)
	}
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	path := writePKCS1Key(t)
	ingestor, err := NewPredictionMarketIngestor("wss://example/trade-api/ws/v2",
		config.PredictionMarketCredential{APIKey: "k", PrivateKeyPath: path}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error constructing ingestor: %v", err)
	}
	if ingestor.path != "/trade-api/ws/v2" {
		t.Fatalf("expected signing path to be derived from the url, got %q", ingestor.path)
	}

	sig, err := ingestor.sign("1700000000000")
	if err != nil {
		t.Fatalf("unexpected signing error: %v", err)
	}
	if sig == "" {
		t.Fatalf("expected a non-empty signature")
	}
}

func TestHandleMessageFiltersUnknownTypes(t *testing.T) {
	path := writePKCS1Key(t)
	sink := &captureSink{}
	ingestor, err := NewPredictionMarketIngestor("wss://example/trade-api/ws/v2",
		config.PredictionMarketCredential{APIKey: "k", PrivateKeyPath: path}, sink, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ingestor.handleMessage(nil, nil, []byte(`{"type":"subscribed"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected control message to be dropped")
	}

	if err := ingestor.handleMessage(nil, nil, []byte(`{"type":"ticker","msg":{"market_ticker":"X"}}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected ticker message to be forwarded")
	}
}
