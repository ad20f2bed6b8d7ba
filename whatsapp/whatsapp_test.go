package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

type capturedButtons struct {
	Interactive struct {
		Action struct {
			Buttons []struct {
				Reply struct {
					Title string `json:"title"`
				} `json:"reply"`
			} `json:"buttons"`
		} `json:"action"`
	} `json:"interactive"`
}

func TestSendButtons_TruncatesTitlesOnRuneBoundary(t *testing.T) {
	var payload capturedButtons
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	api := &CloudAPI{
		apiURL:        srv.URL,
		phoneNumberID: "123",
		token:         "test-token",
		httpClient:    srv.Client(),
	}
	err := api.SendButtons(context.Background(), "56912345678", "Elige una cuenta:", []Button{
		{Title: "Cuenta Débito Empresarial"},
		{Title: "Efectivo"},
	})
	require.NoError(t, err)

	require.Len(t, payload.Interactive.Action.Buttons, 2)
	title := payload.Interactive.Action.Buttons[0].Reply.Title
	require.True(t, utf8.ValidString(title))
	require.Equal(t, 20, utf8.RuneCountInString(title))
	require.Equal(t, "Cuenta Débito Empres", title)
	require.Equal(t, "Efectivo", payload.Interactive.Action.Buttons[1].Reply.Title)
}
