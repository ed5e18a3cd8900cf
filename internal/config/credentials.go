package config

import (
	"fmt"
	"os"
	"strings"
)

// maxCredentialSlots bounds the numbered credential slots Hadron will probe
// for a given venue, mirroring the enumeration style of the venue this
// ingestor was modeled on.
const maxCredentialSlots = 10

// EquitiesCredential is a single API key slot discovered for the equities
// ingestor.
type EquitiesCredential struct {
	Slot   int
	APIKey string
}

// PredictionMarketCredential pairs an API key with the PEM-encoded private
// key path used to sign request headers.
type PredictionMarketCredential struct {
	Slot           int
	APIKey         string
	PrivateKeyPath string
}

// DiscoverEquitiesCredentials enumerates EQUITIES_API_KEY and
// EQUITIES_API_KEY_1..EQUITIES_API_KEY_10.
func DiscoverEquitiesCredentials() ([]EquitiesCredential, error) {
	var creds []EquitiesCredential
	if primary := strings.TrimSpace(os.Getenv("EQUITIES_API_KEY")); primary != "" {
		creds = append(creds, EquitiesCredential{Slot: 0, APIKey: primary})
	}
	for i := 1; i <= maxCredentialSlots; i++ {
		key := strings.TrimSpace(os.Getenv(fmt.Sprintf("EQUITIES_API_KEY_%d", i)))
		if key == "" {
			continue
		}
		creds = append(creds, EquitiesCredential{Slot: i, APIKey: key})
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("config: no equities credentials found (EQUITIES_API_KEY[_N])")
	}
	return creds, nil
}

// DiscoverPredictionMarketCredentials enumerates
// PREDICTION_MARKET_API_KEY[_N] paired with
// PREDICTION_MARKET_PRIVATE_KEY_[N]_PATH.
func DiscoverPredictionMarketCredentials() ([]PredictionMarketCredential, error) {
	var creds []PredictionMarketCredential
	if primary := strings.TrimSpace(os.Getenv("PREDICTION_MARKET_API_KEY")); primary != "" {
		path := strings.TrimSpace(os.Getenv("PREDICTION_MARKET_PRIVATE_KEY_PATH"))
		if path == "" {
			return nil, fmt.Errorf("config: PREDICTION_MARKET_API_KEY set without PREDICTION_MARKET_PRIVATE_KEY_PATH")
		}
		creds = append(creds, PredictionMarketCredential{Slot: 0, APIKey: primary, PrivateKeyPath: path})
	}
	for i := 1; i <= maxCredentialSlots; i++ {
		key := strings.TrimSpace(os.Getenv(fmt.Sprintf("PREDICTION_MARKET_API_KEY_%d", i)))
		if key == "" {
			continue
		}
		path := strings.TrimSpace(os.Getenv(fmt.Sprintf("PREDICTION_MARKET_PRIVATE_KEY_%d_PATH", i)))
		if path == "" {
			return nil, fmt.Errorf("config: PREDICTION_MARKET_API_KEY_%d set without matching PRIVATE_KEY_%d_PATH", i, i)
		}
		creds = append(creds, PredictionMarketCredential{Slot: i, APIKey: key, PrivateKeyPath: path})
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("config: no prediction-market credentials found (PREDICTION_MARKET_API_KEY[_N])")
	}
	return creds, nil
}
