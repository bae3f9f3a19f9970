package server

import "testing"

func TestCreateTransactionRequestToDomain(t *testing.T) {
	req := CreateTransactionRequest{
		ID:       "tx-1",
		To:       "0x1Ed5Ee9e5046d0C5EAAB1A5a2D9bc6aB0B4bC7a2",
		Value:    "1000000000000000000",
		GasLimit: "21000",
		Priority: "fast",
	}

	tx, err := req.ToDomain("relayer-1")
	if err != nil {
		t.Fatalf("ToDomain: %v", err)
	}
	if tx.ID != "tx-1" {
		t.Fatalf("expected tx id preserved, got %q", tx.ID)
	}
	if tx.RelayerID != "relayer-1" {
		t.Fatalf("expected relayer id set, got %q", tx.RelayerID)
	}
	if tx.GasLimit != 21000 {
		t.Fatalf("expected gas limit 21000, got %d", tx.GasLimit)
	}
	if tx.Value.String() != "1000000000000000000" {
		t.Fatalf("unexpected value: %s", tx.Value)
	}
}

func TestCreateTransactionRequestRejectsBadAddress(t *testing.T) {
	req := CreateTransactionRequest{To: "not-an-address", Value: "0", GasLimit: "21000"}
	if _, err := req.ToDomain("relayer-1"); err == nil {
		t.Fatalf("expected error for invalid to address")
	}
}

func TestCreateTransactionRequestRejectsBadGasLimit(t *testing.T) {
	req := CreateTransactionRequest{
		To:       "0x1Ed5Ee9e5046d0C5EAAB1A5a2D9bc6aB0B4bC7a2",
		Value:    "0",
		GasLimit: "not-a-number",
	}
	if _, err := req.ToDomain("relayer-1"); err == nil {
		t.Fatalf("expected error for invalid gas limit")
	}
}

func TestCreateTransactionRequestDefaultsEmptyValueToZero(t *testing.T) {
	req := CreateTransactionRequest{
		To:       "0x1Ed5Ee9e5046d0C5EAAB1A5a2D9bc6aB0B4bC7a2",
		GasLimit: "21000",
	}
	tx, err := req.ToDomain("relayer-1")
	if err != nil {
		t.Fatalf("ToDomain: %v", err)
	}
	if tx.Value.Sign() != 0 {
		t.Fatalf("expected zero value default, got %s", tx.Value)
	}
}
