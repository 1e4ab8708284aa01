package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCall_SignsRequest(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/recharge/do", r.URL.Path)
		assert.Equal(t, "TEST_KEY", r.Header.Get(HeaderAPIKey))
		assert.Equal(t, "1700000000", r.Header.Get(HeaderTimestamp))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.True(t, Verify("TEST_SECRET", "1700000000", http.MethodPost, "/recharge/do", body, r.Header.Get(HeaderSignature)))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0,"message":"ok","txn_id":"GW-1"}`))
	}))
	defer server.Close()

	client := &Client{
		BaseURL:    server.URL,
		APIKey:     "TEST_KEY",
		Secret:     "TEST_SECRET",
		HTTPClient: server.Client(),
		now:        func() time.Time { return fixed },
	}

	resp, err := client.Call(context.Background(), http.MethodPost, "/recharge/do", map[string]string{"mobile": "9800000000"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := Interpret(resp)
	assert.True(t, out.Success)
	assert.Equal(t, "GW-1", out.Reference)
}

func TestClientCall_NonJSONBodyIsQuoted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	resp, err := client.Call(context.Background(), http.MethodPost, "/x", nil)
	require.NoError(t, err)
	assert.True(t, json.Valid(resp.Data))
	assert.False(t, Interpret(resp).Success)
}

func TestClientCall_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := New(server.URL, "k", "s", 20*time.Millisecond)
	_, err := client.Call(context.Background(), http.MethodPost, "/slow", nil)
	assert.Error(t, err)
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		success   bool
		reference string
		message   string
	}{
		{"numeric zero status", 200, `{"status":0,"reference":"R1"}`, true, "R1", "transaction successful"},
		{"numeric failure status", 200, `{"status":1,"message":"Insufficient float"}`, false, "", "Insufficient float"},
		{"string success", 200, `{"status":"SUCCESS","utr":"UTR9"}`, true, "UTR9", "transaction successful"},
		{"boolean success", 200, `{"success":true,"data":{"transaction_id":"T5"}}`, true, "T5", "transaction successful"},
		{"boolean failure", 200, `{"success":false,"error":"invalid account"}`, false, "", "invalid account"},
		{"http error overrides body", 500, `{"status":0}`, false, "", "transaction failed at gateway"},
		{"not an object", 200, `"ok"`, false, "", "unrecognised gateway response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Interpret(&Response{StatusCode: tt.status, Data: json.RawMessage(tt.body)})
			assert.Equal(t, tt.success, out.Success)
			assert.Equal(t, tt.reference, out.Reference)
			assert.Equal(t, tt.message, out.Message)
		})
	}
}

func TestInterpret_Nil(t *testing.T) {
	assert.False(t, Interpret(nil).Success)
}
