package translation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	var seen []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		seen = append(seen, body)
		switch body["target"] {
		case "de":
			_, _ = w.Write([]byte(`{"translatedText":" Hallo Welt ","alternatives":["Hallo, Welt"," "],"detectedLanguage":{"confidence":90,"language":"en"}}`))
		default:
			_, _ = w.Write([]byte(`{"translatedText":"Bonjour le monde","detectedLanguage":"en"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 2, zerolog.Nop())
	out, err := c.Translate(context.Background(), "hello world", "", []string{"de", "fr"}, 1)
	require.NoError(t, err)
	require.Equal(t, map[string]Translation{
		"de": {Primary: "Hallo Welt", Alternatives: []string{"Hallo, Welt"}, DetectedLanguage: "en"},
		"fr": {Primary: "Bonjour le monde", DetectedLanguage: "en"},
	}, out)
	require.Len(t, seen, 2)
	require.Equal(t, "auto", seen[0]["source"])
	require.Equal(t, float64(1), seen[0]["alternatives"])
}

func TestTranslateSkipsEmptyWork(t *testing.T) {
	c := New("http://127.0.0.1:1", 1, zerolog.Nop())
	out, err := c.Translate(context.Background(), "   ", "en", []string{"de"}, 0)
	require.NoError(t, err)
	require.Empty(t, out)

	var nilClient *Client
	out, err = nilClient.Translate(context.Background(), "hi", "en", []string{"de"}, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestTranslateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := New(srv.URL, 1, zerolog.Nop()).Translate(context.Background(), "hi", "en", []string{"de"}, 0)
	require.ErrorContains(t, err, "429")
}
