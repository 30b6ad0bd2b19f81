package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func quoteFixture() map[string]any {
	return map[string]any{
		"inputMint":            "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"inAmount":             "100000000",
		"outputMint":           "So11111111111111111111111111111111111111112",
		"outAmount":            "680000000",
		"otherAmountThreshold": "676600000",
		"swapMode":             "ExactIn",
		"slippageBps":          50,
		"priceImpactPct":       "0.0012",
		"routePlan": []map[string]any{
			{
				"swapInfo": map[string]any{
					"ammKey":     "amm1",
					"label":      "Orca",
					"inputMint":  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
					"outputMint": "So11111111111111111111111111111111111111112",
					"inAmount":   "100000000",
					"outAmount":  "680000000",
					"feeAmount":  "250000",
					"feeMint":    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				},
				"percent": 100,
			},
		},
		"contextSlot": int64(250000000),
	}
}

func TestClient_Quote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("expected path /quote, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("inputMint") == "" || q.Get("outputMint") == "" {
			t.Error("missing mint parameters")
		}
		if q.Get("amount") != "100000000" {
			t.Errorf("expected amount 100000000, got %s", q.Get("amount"))
		}
		if q.Get("slippageBps") != "50" {
			t.Errorf("expected slippageBps 50, got %s", q.Get("slippageBps"))
		}
		if q.Get("swapMode") != "ExactIn" {
			t.Errorf("expected swapMode ExactIn, got %s", q.Get("swapMode"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(quoteFixture())
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	quote, err := client.Quote(context.Background(), &QuoteRequest{
		InputMint:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		OutputMint:  "So11111111111111111111111111111111111111112",
		Amount:      "100000000",
		SlippageBps: 50,
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	if quote.OutAmount != "680000000" {
		t.Errorf("expected outAmount 680000000, got %s", quote.OutAmount)
	}
	if quote.PriceImpactPct != "0.0012" {
		t.Errorf("expected priceImpactPct 0.0012, got %s", quote.PriceImpactPct)
	}
	if len(quote.RoutePlan) != 1 {
		t.Fatalf("expected 1 route step, got %d", len(quote.RoutePlan))
	}
	if quote.RoutePlan[0].SwapInfo.FeeAmount != "250000" {
		t.Errorf("expected feeAmount 250000, got %s", quote.RoutePlan[0].SwapInfo.FeeAmount)
	}
}

func TestClient_QuoteExplicitSwapMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("swapMode"); got != "ExactOut" {
			t.Errorf("expected swapMode ExactOut, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(quoteFixture())
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.Quote(context.Background(), &QuoteRequest{
		InputMint:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		OutputMint:  "So11111111111111111111111111111111111111112",
		Amount:      "100000000",
		SlippageBps: 50,
		SwapMode:    "ExactOut",
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
}

func TestClient_Swap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/swap" {
			t.Errorf("expected POST /swap, got %s %s", r.Method, r.URL.Path)
		}
		var req SwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.UserPublicKey != "wallet1" {
			t.Errorf("expected userPublicKey wallet1, got %s", req.UserPublicKey)
		}
		if req.QuoteResponse == nil || req.QuoteResponse.OutAmount != "680000000" {
			t.Error("quote not forwarded in swap request")
		}
		json.NewEncoder(w).Encode(SwapResponse{
			SwapTransaction:      "AQAB...base64",
			LastValidBlockHeight: 250000100,
		})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	swap, err := client.Swap(context.Background(), &SwapRequest{
		QuoteResponse:    &QuoteResponse{OutAmount: "680000000"},
		UserPublicKey:    "wallet1",
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if swap.SwapTransaction != "AQAB...base64" {
		t.Errorf("unexpected swap transaction %q", swap.SwapTransaction)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(quoteFixture())
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithRetryDelay(time.Millisecond))
	_, err := client.Quote(context.Background(), &QuoteRequest{
		InputMint: "a", OutputMint: "b", Amount: "1", SlippageBps: 50,
	})
	if err != nil {
		t.Fatalf("Quote after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"no route found"}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithRetryDelay(time.Millisecond))
	_, err := client.Quote(context.Background(), &QuoteRequest{
		InputMint: "a", OutputMint: "b", Amount: "1", SlippageBps: 50,
	})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", apiErr.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("400 should not be retried, got %d calls", calls.Load())
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	_, err := client.Quote(context.Background(), &QuoteRequest{
		InputMint: "a", OutputMint: "b", Amount: "1", SlippageBps: 50,
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(server.URL), WithRetryDelay(time.Second))
	_, err := client.Quote(ctx, &QuoteRequest{InputMint: "a", OutputMint: "b", Amount: "1"})
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
