package platformclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/platformclient"
)

type fakeCredentialHolder struct {
	access       string
	refreshCalls int32
}

func (f *fakeCredentialHolder) Current() (string, time.Time) { return f.access, time.Now().Add(time.Hour) }
func (f *fakeCredentialHolder) Refresh(context.Context) (string, time.Time, error) {
	atomic.AddInt32(&f.refreshCalls, 1)
	f.access = "refreshed-token"
	return f.access, time.Now().Add(time.Hour), nil
}

func TestClient_PostReply_RefreshesOnceAfter401(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "refreshed-token", r.URL.Query().Get("access_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "reply-1", "snippet": map[string]any{"textOriginal": "thanks!"}})
	}))
	defer srv.Close()

	cred := &fakeCredentialHolder{access: "stale-token"}
	c := platformclient.New(srv.URL, cred, 5*time.Second, srv.Client())

	reply, err := c.PostReply(context.Background(), "c1", "thanks!")
	require.NoError(t, err)
	assert.Equal(t, "reply-1", reply.ExternalReplyID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&cred.refreshCalls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_PostReply_UnauthorizedAfterSecond401(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cred := &fakeCredentialHolder{access: "stale-token"}
	c := platformclient.New(srv.URL, cred, 5*time.Second, srv.Client())

	_, err := c.PostReply(context.Background(), "c1", "thanks!")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClient_ListVideoComments_PaginatesAndCaps(t *testing.T) {
	t.Parallel()
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		if page == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "p2",
				"items": []map[string]any{
					{"id": "c1", "snippet": map[string]any{"topLevelComment": map[string]any{"snippet": map[string]any{
						"textDisplay": "hi", "authorDisplayName": "Ana", "publishedAt": "2024-01-01T00:00:00Z",
					}}}},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "c2", "snippet": map[string]any{"topLevelComment": map[string]any{"snippet": map[string]any{
					"textDisplay": "price?", "authorDisplayName": "Bo", "publishedAt": "2024-01-02T00:00:00Z",
				}}}},
			},
		})
	}))
	defer srv.Close()

	cred := &fakeCredentialHolder{access: "tok"}
	c := platformclient.New(srv.URL, cred, 5*time.Second, srv.Client())

	comments, err := c.ListVideoComments(context.Background(), "v1", 100)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c1", comments[0].ExternalCommentID)
	assert.Equal(t, "c2", comments[1].ExternalCommentID)
}
