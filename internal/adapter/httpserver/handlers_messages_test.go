package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
)

func TestHandleIndex_RendersMessages(t *testing.T) {
	f := newTestFixture(t)
	f.messages.seed(domain.Message{ID: 1, Text: "first post", AuthorID: 1, AuthorName: "alice"})
	f.messages.seed(domain.Message{ID: 2, Text: "second post", AuthorID: 2, AuthorName: "bob"})

	rec := f.do(t, http.MethodGet, "/", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "first post")
	assert.Contains(t, body, "second post")
	assert.Contains(t, body, "alice")
}

func TestHandleListMessages(t *testing.T) {
	f := newTestFixture(t)
	f.messages.seed(domain.Message{ID: 1, Text: "hello board", AuthorID: 1, AuthorName: "alice"})

	rec := f.do(t, http.MethodGet, "/messages", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello board")
	assert.Contains(t, rec.Body.String(), `id="message-1"`)
}

func TestCreateMessage_Authenticated(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.loginAs(t, "alice")

	rec := f.do(t, http.MethodPost, "/messages", url.Values{"message": {"hello everyone"}}, cookies)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello everyone")

	// Persisted and fanned out, with identical bytes in both places.
	stored, err := f.messages.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "hello everyone", stored[0].Text)

	require.Equal(t, 1, f.hub.broadcastCount())
	assert.Equal(t, rec.Body.Bytes(), f.hub.lastBroadcast())
	assert.Contains(t, string(f.hub.lastBroadcast()), "alice")
}

func TestCreateMessage_AnonymousRejected(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/messages", url.Values{"message": {"sneaky post"}}, cookies)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "login required")

	// Nothing persisted, nothing broadcast.
	stored, err := f.messages.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, 0, f.hub.broadcastCount())
}

func TestCreateMessage_EmptyText(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.loginAs(t, "alice")

	for _, text := range []string{"", "   ", "\t\n"} {
		rec := f.do(t, http.MethodPost, "/messages", url.Values{"message": {text}}, cookies)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	assert.Equal(t, 0, f.hub.broadcastCount())
}

func TestCreateMessage_PersistFailureNoBroadcast(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.loginAs(t, "alice")
	f.messages.createErr = errors.New("pg: connection refused")

	rec := f.do(t, http.MethodPost, "/messages", url.Values{"message": {"doomed"}}, cookies)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, f.hub.broadcastCount(), "failed persist must not broadcast")
}

func TestCreateMessage_EscapesHTML(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.loginAs(t, "alice")

	rec := f.do(t, http.MethodPost, "/messages", url.Values{"message": {`<script>alert("xss")</script>`}}, cookies)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestDeleteMessage_Author(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.loginAs(t, "alice") // user ID 1

	rec := f.do(t, http.MethodPost, "/messages", url.Values{"message": {"my post"}}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodDelete, "/messages/1", nil, cookies)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := f.messages.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDeleteMessage_NonAuthorForbidden(t *testing.T) {
	f := newTestFixture(t)
	f.messages.seed(domain.Message{ID: 1, Text: "not yours", AuthorID: 99, AuthorName: "someone"})

	cookies := f.loginAs(t, "mallory")
	rec := f.do(t, http.MethodDelete, "/messages/1", nil, cookies)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "only the author")

	// The message survives.
	stored, err := f.messages.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestDeleteMessage_AnonymousRejected(t *testing.T) {
	f := newTestFixture(t)
	f.messages.seed(domain.Message{ID: 1, Text: "keep me", AuthorID: 1, AuthorName: "alice"})

	cookies := f.newSession(t)
	rec := f.do(t, http.MethodDelete, "/messages/1", nil, cookies)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteMessage_NotFound(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.loginAs(t, "alice")

	rec := f.do(t, http.MethodDelete, "/messages/12345", nil, cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessage_InvalidID(t *testing.T) {
	f := newTestFixture(t)
	cookies := f.loginAs(t, "alice")

	rec := f.do(t, http.MethodDelete, "/messages/not-a-number", nil, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
