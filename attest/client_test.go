package attest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGenerateAndCreate(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/attestations", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var cmd Command
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))

		json.NewEncoder(w).Encode(Attestation{
			ID:         "att-1",
			Subjects:   cmd.Subjects,
			Predicates: cmd.Predicates,
			Contexts:   cmd.Contexts,
			Source:     Source,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	att, err := client.GenerateAndCreate(context.Background(), Command{
		Subjects:   []string{"http://h/"},
		Predicates: []string{PredicateHasTitle},
		Contexts:   []string{"T"},
	})
	require.NoError(t, err)

	assert.Equal(t, "att-1", att.ID)
	assert.Equal(t, []string{"http://h/"}, att.Subjects)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestClientExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/attestations/known" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	exists, err := client.Exists(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.Exists(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClientQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/attestations/query", r.URL.Path)

		var filter Filter
		require.NoError(t, json.NewDecoder(r.Body).Decode(&filter))
		assert.Equal(t, []string{"http://h/"}, filter.Subjects)

		json.NewEncoder(w).Encode(map[string]any{
			"attestations": []Attestation{{ID: "att-1"}, {ID: "att-2"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	got, err := client.Query(context.Background(), Filter{Subjects: []string{"http://h/"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClientStoreError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such store", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.GenerateAndCreate(context.Background(), Command{})
	require.Error(t, err)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Contains(t, se.Message, "no such store")
}
