package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
	"github.com/alecbass/jdp-htmx-chat/internal/platform/config"
)

// --- Mock implementations ---

type mockSessionRepo struct {
	mu         sync.Mutex
	sessions   map[string]*domain.Session
	createErr  error
	getErr     error
	setUserErr error
	created    int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, token string, expiresAt time.Time) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	session := &domain.Session{Token: token, ExpiresAt: expiresAt}
	m.sessions[token] = session
	m.created++
	return session, nil
}

func (m *mockSessionRepo) Get(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	session, ok := m.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (m *mockSessionRepo) SetUser(_ context.Context, token string, userID int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setUserErr != nil {
		return nil, m.setUserErr
	}
	session, ok := m.sessions[token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session.UserID = &userID
	return session, nil
}

type mockUserRepo struct {
	mu     sync.Mutex
	byName map[string]*domain.User
	byID   map[int64]*domain.User
	nextID int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byName: make(map[string]*domain.User), byID: make(map[int64]*domain.User), nextID: 1}
}

func (m *mockUserRepo) Upsert(_ context.Context, name string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byName[name]; ok {
		return user, nil
	}
	user := &domain.User{ID: m.nextID, Name: name}
	m.nextID++
	m.byName[name] = user
	m.byID[user.ID] = user
	return user, nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

type mockMessageRepo struct {
	mu        sync.Mutex
	messages  []domain.Message
	nextID    int64
	createErr error
	users     *mockUserRepo
}

func newMockMessageRepo(users *mockUserRepo) *mockMessageRepo {
	return &mockMessageRepo{nextID: 1, users: users}
}

func (m *mockMessageRepo) seed(msg domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if msg.ID >= m.nextID {
		m.nextID = msg.ID + 1
	}
}

func (m *mockMessageRepo) Create(ctx context.Context, text string, authorID int64) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	authorName := ""
	if m.users != nil {
		if user, err := m.users.GetByID(ctx, authorID); err == nil {
			authorName = user.Name
		}
	}
	msg := domain.Message{ID: m.nextID, Text: text, AuthorID: authorID, AuthorName: authorName}
	m.nextID++
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *mockMessageRepo) List(_ context.Context) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Message, len(m.messages))
	copy(out, m.messages)
	return out, nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			found := msg
			return &found, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *mockMessageRepo) Delete(_ context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type mockHub struct {
	mu         sync.Mutex
	broadcasts [][]byte
}

func (m *mockHub) Register(_ *websocket.Conn) error { return nil }
func (m *mockHub) Unregister(_ *websocket.Conn)     {}
func (m *mockHub) ClientCount() int                 { return 0 }

func (m *mockHub) Broadcast(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, payload)
}

func (m *mockHub) broadcastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.broadcasts)
}

func (m *mockHub) lastBroadcast() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.broadcasts) == 0 {
		return nil
	}
	return m.broadcasts[len(m.broadcasts)-1]
}

// --- Test server setup ---

type testFixture struct {
	server   *Server
	sessions *mockSessionRepo
	users    *mockUserRepo
	messages *mockMessageRepo
	hub      *mockHub
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		SessionSecret:           strings.Repeat("s", 32),
		SessionMaxAge:           time.Hour,
		MaxWebSocketConnections: 100,
		PostRatePerSecond:       1000,
		PostRateBurst:           1000,
	}
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	sessions := newMockSessionRepo()
	users := newMockUserRepo()
	messages := newMockMessageRepo(users)
	hub := &mockHub{}

	srv, err := NewServer(testConfig(), clockwork.NewRealClock(), sessions, users, messages, hub, nil)
	require.NoError(t, err)

	return &testFixture{server: srv, sessions: sessions, users: users, messages: messages, hub: hub}
}

// do runs one request through the full middleware chain.
func (f *testFixture) do(t *testing.T, method, target string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set(echoHeaderContentType, echoMIMEForm)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)
	return rec
}

const (
	echoHeaderContentType = "Content-Type"
	echoMIMEForm          = "application/x-www-form-urlencoded"
)

// newSession performs one request to obtain a fresh session cookie.
func (f *testFixture) newSession(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

// loginAs creates a session and binds the named user to it.
func (f *testFixture) loginAs(t *testing.T, name string) []*http.Cookie {
	t.Helper()
	cookies := f.newSession(t)
	rec := f.do(t, http.MethodPost, "/login", url.Values{"name": {name}}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	return cookies
}
