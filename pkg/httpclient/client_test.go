package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/meterctl/pkg/httpclient"
)

func TestClient_Send_AppliesTransformsInOrder(t *testing.T) {
	var gotHeader []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Values("X-Step")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	step := func(v string) httpclient.RequestTransform {
		return func(_ context.Context, req *httpclient.Request) error {
			req.Header.Add("X-Step", v)
			return nil
		}
	}

	client := httpclient.New(srv.URL, srv.Client(), httpclient.WithRequestTransforms(step("1"), step("2")))
	req := httpclient.NewRequest(http.MethodGet, "/things")

	var out struct{ OK bool }
	require.NoError(t, client.Do(context.Background(), req, &out))
	assert.True(t, out.OK)
	assert.Equal(t, []string{"1", "2"}, gotHeader)
	assert.Empty(t, req.Header.Values("X-Step"), "caller's request must not be mutated")
}

func TestClient_Send_TransformErrorAbortsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	failing := func(context.Context, *httpclient.Request) error { return errors.New("boom") }
	client := httpclient.New(srv.URL, srv.Client(), httpclient.WithRequestTransforms(failing))

	_, err := client.Send(context.Background(), httpclient.NewRequest(http.MethodGet, "/x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, called)
}

func TestClient_Send_StatusErrorWithProblem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"title":"Meter already registered","status":409}`))
	}))
	defer srv.Close()

	client := httpclient.New(srv.URL, srv.Client())
	resp, err := client.Send(context.Background(), httpclient.NewRequest(http.MethodPost, "/smart-meters"))

	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode())
	require.NotNil(t, statusErr.Problem)
	assert.Equal(t, "Meter already registered", err.Error())
	assert.Equal(t, "Meter already registered", httpclient.MessageFrom(err))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.True(t, httpclient.IsStatus(err, http.StatusConflict))
	assert.False(t, httpclient.IsStatus(err, http.StatusUnauthorized))
}

func TestClient_Send_StatusErrorWithoutProblem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("oops"))
	}))
	defer srv.Close()

	_, err := httpclient.New(srv.URL, srv.Client()).Send(context.Background(), httpclient.NewRequest(http.MethodGet, "/"))
	require.Error(t, err)
	assert.Equal(t, "request failed with status code 500", err.Error())
}

func TestClient_Send_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := httpclient.New(url, http.DefaultClient).Send(context.Background(), httpclient.NewRequest(http.MethodGet, "/"))

	var transportErr *httpclient.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.False(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	assert.NotEmpty(t, httpclient.MessageFrom(err))
}

func TestClient_Send_RecoveryReplayBypassesRecovery(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	recoveries := 0
	recovery := func(ctx context.Context, req *httpclient.Request, resp *httpclient.Response, err error, replay httpclient.Replayer) (*httpclient.Response, error) {
		recoveries++
		if err == nil {
			return resp, nil
		}
		retry := req.Clone()
		retry.Retried = true
		return replay(ctx, retry)
	}

	client := httpclient.New(srv.URL, srv.Client(), httpclient.WithResponseRecovery(recovery))
	_, err := client.Send(context.Background(), httpclient.NewRequest(http.MethodGet, "/"))

	assert.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, 1, recoveries)
	assert.Equal(t, 2, hits)
}

func TestClient_Send_BodyIsResentOnReplay(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	recovery := func(ctx context.Context, req *httpclient.Request, resp *httpclient.Response, err error, replay httpclient.Replayer) (*httpclient.Response, error) {
		if err == nil {
			return resp, nil
		}
		return replay(ctx, req.Clone())
	}

	req, err := httpclient.NewJSONRequest(http.MethodPost, "/policies", map[string]string{"name": "p"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	_, err = httpclient.New(srv.URL, srv.Client(), httpclient.WithResponseRecovery(recovery)).Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"name":"p"}`, `{"name":"p"}`}, bodies)
}

func TestRequest_BearerToken(t *testing.T) {
	req := httpclient.NewRequest(http.MethodGet, "/")
	assert.Empty(t, req.BearerToken())

	req.SetBearerToken("abc")
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	assert.Equal(t, "abc", req.BearerToken())

	req.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, req.BearerToken())
}

func TestRequest_CloneIsDeep(t *testing.T) {
	req := httpclient.NewRequest(http.MethodPost, "/")
	req.Body = []byte("abc")
	req.Header.Set("X-A", "1")

	clone := req.Clone()
	clone.Body[0] = 'z'
	clone.Header.Set("X-A", "2")

	assert.Equal(t, "abc", string(req.Body))
	assert.Equal(t, "1", req.Header.Get("X-A"))
}

func TestResponse_DecodeJSON_EmptyBody(t *testing.T) {
	var v map[string]any
	assert.Error(t, (&httpclient.Response{}).DecodeJSON(&v))
}

func TestParseProblem(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		ok    bool
		title string
	}{
		{name: "title", body: `{"title":"Invalid refresh token","status":401}`, ok: true, title: "Invalid refresh token"},
		{name: "detail only", body: `{"detail":"expired"}`, ok: true},
		{name: "no title or detail", body: `{"status":401}`},
		{name: "array", body: `[1,2]`},
		{name: "plain text", body: `Unauthorized`},
		{name: "broken json", body: `{"title":`},
		{name: "empty", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := httpclient.ParseProblem([]byte(tt.body))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.title, p.Title)
		})
	}
}
