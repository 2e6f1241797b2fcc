package formrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_PostsJSON(t *testing.T) {
	var got Application
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	err := c.Submit(context.Background(), Application{
		FormType:     "cleaner",
		Name:         "Sam Lee",
		Email:        "sam@example.com",
		Phone:        "555-0100",
		Availability: []string{"weekdays"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cleaner", got.FormType)
	assert.Equal(t, "sam@example.com", got.Email)
	assert.Equal(t, []string{"weekdays"}, got.Availability)
}

func TestSubmit_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "spam detected", http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	err := NewClient(ts.URL).Submit(context.Background(), Application{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "spam detected")
}

func TestSubmit_NotConfigured(t *testing.T) {
	err := NewClient("").Submit(context.Background(), Application{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
