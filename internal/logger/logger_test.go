package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter(&buf, "warn", "text")
	t.Cleanup(func() { Initialize("info", "text") })

	Info("hidden")
	Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "k=v")
}

func TestWalletMutation_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter(&buf, "info", "json")
	t.Cleanup(func() { Initialize("info", "text") })

	WalletMutation(7, "debit", "recharge", "100.00", "900.00", "reference", "TXN-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "Wallet mutated", line["msg"])
	assert.Equal(t, float64(7), line["wallet_id"])
	assert.Equal(t, "900.00", line["balance_after"])
	assert.Equal(t, "TXN-1", line["reference"])
}

func TestExitMethodWithError_LogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter(&buf, "error", "json")
	t.Cleanup(func() { Initialize("info", "text") })

	EnterMethod("walletService.Debit")
	ExitMethodWithError("walletService.Debit", errors.New("insufficient balance"))

	out := strings.TrimSpace(buf.String())
	require.Equal(t, 1, strings.Count(out, "\n")+1)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "insufficient balance")
}
