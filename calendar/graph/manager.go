package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity/cache"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/viant/afs"

	oaauth "github.com/viant/calcatime/auth"
	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/logging"
)

// DefaultTenant lets Azure AD resolve the tenant from the user principal.
const DefaultTenant = "organizations"

// CredentialFactory builds a token credential for a user; tests substitute a fake.
type CredentialFactory func(ctx context.Context, creds calendar.Credentials, scopes []string) (azcore.TokenCredential, error)

// Manager provides Azure AD credentials and Microsoft Graph clients per user login.
type Manager struct {
	clientID   string
	tenantID   string
	storageDir string
	auth       *oaauth.Service
	logger     *slog.Logger
	fs         afs.Service

	// NewCredential overrides the username/password credential flow.
	NewCredential CredentialFactory

	mu sync.RWMutex
	// clients caches GraphServiceClient instances per login+tenant+scopes.
	clients map[string]*msgraphsdk.GraphServiceClient
	// creds caches credentials per login+tenant, kept in memory for the process lifetime.
	creds map[string]azcore.TokenCredential
}

func NewManager(clientID, tenantID, storageDir string, logger *slog.Logger) *Manager {
	if tenantID == "" {
		tenantID = DefaultTenant
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		clientID:   clientID,
		tenantID:   tenantID,
		storageDir: storageDir,
		auth:       oaauth.New(),
		logger:     logger,
		fs:         afs.New(),
		clients:    map[string]*msgraphsdk.GraphServiceClient{},
		creds:      map[string]azcore.TokenCredential{},
	}
}

func (m *Manager) authRecordURL(login string) string {
	return strings.TrimRight(m.storageDir, "/") + "/" + fmt.Sprintf("%s_%s_auth_record.json", safePart(m.tenantID), safePart(login))
}

func safePart(s string) string {
	s = strings.TrimSpace(os.ExpandEnv(s))
	repl := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "|", "_", " ", "_", "@", "_")
	return repl.Replace(s)
}

// ExpandPath expands environment variables and a leading ~ in p.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}

// Credential returns a cached credential for creds, acquiring and caching it if needed.
func (m *Manager) Credential(ctx context.Context, creds calendar.Credentials, scopes []string) (azcore.TokenCredential, error) {
	key := m.tenantID + "|" + strings.ToLower(creds.Username)
	m.mu.RLock()
	if c := m.creds[key]; c != nil {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()
	factory := m.NewCredential
	if factory == nil {
		factory = m.acquireCredential
	}
	cred, err := factory(ctx, creds, scopes)
	if err != nil {
		return nil, classify(err)
	}
	m.mu.Lock()
	if existing := m.creds[key]; existing != nil {
		m.mu.Unlock()
		return existing, nil
	}
	m.creds[key] = cred
	m.mu.Unlock()
	return cred, nil
}

// Token returns a bearer token for scopes.
func (m *Manager) Token(ctx context.Context, creds calendar.Credentials, scopes []string) (string, error) {
	cred, err := m.Credential(ctx, creds, scopes)
	if err != nil {
		return "", err
	}
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return "", classify(err)
	}
	m.logger.Debug("acquired token",
		slog.String(logging.KeyAccount, m.auth.Identity(tok.Token)),
		slog.String("token", logging.SanitizeToken(tok.Token)),
		slog.Time("expires", tok.ExpiresOn))
	return tok.Token, nil
}

// Client returns a ready-to-use GraphServiceClient with given scopes.
func (m *Manager) Client(ctx context.Context, creds calendar.Credentials, scopes []string) (*msgraphsdk.GraphServiceClient, error) {
	key := m.clientKey(creds.Username, scopes)
	m.mu.RLock()
	if cli, ok := m.clients[key]; ok {
		m.mu.RUnlock()
		return cli, nil
	}
	m.mu.RUnlock()

	cred, err := m.Credential(ctx, creds, scopes)
	if err != nil {
		return nil, err
	}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("%w: graph client: %w", calendar.ErrConnection, err)
	}
	m.mu.Lock()
	if existing, ok := m.clients[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.clients[key] = client
	m.mu.Unlock()
	return client, nil
}

// acquireCredential performs the username/password flow. A persisted auth record lets the
// token cache answer silently; otherwise the user is authenticated and a fresh record saved.
func (m *Manager) acquireCredential(ctx context.Context, creds calendar.Credentials, scopes []string) (azcore.TokenCredential, error) {
	if m.clientID == "" {
		return nil, fmt.Errorf("%w: an Azure AD application client id is required", calendar.ErrAuthentication)
	}
	login := creds.Username
	opts := &azidentity.UsernamePasswordCredentialOptions{}
	// Persist tokens via azidentity/cache (Keychain on macOS, keyring on Linux) when available.
	if aCache, err := cache.New(&cache.Options{Name: "calcatime-" + safePart(m.tenantID) + "-" + safePart(login)}); err == nil {
		opts.Cache = aCache
	} else {
		m.logger.Debug("persistent token cache unavailable", logging.Err(err))
	}
	rec, haveRec := m.loadAuthRecord(ctx, login)
	if haveRec {
		opts.AuthenticationRecord = rec
	}
	cred, err := azidentity.NewUsernamePasswordCredential(m.tenantID, m.clientID, login, creds.Password, opts)
	if err != nil {
		return nil, err
	}
	if haveRec {
		return cred, nil
	}
	rec, err = cred.Authenticate(ctx, &policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return nil, err
	}
	m.saveAuthRecord(ctx, login, rec)
	return cred, nil
}

func (m *Manager) loadAuthRecord(ctx context.Context, login string) (azidentity.AuthenticationRecord, bool) {
	var rec azidentity.AuthenticationRecord
	if m.storageDir == "" {
		return rec, false
	}
	rc, err := m.fs.OpenURL(ctx, m.authRecordURL(login))
	if err != nil || rc == nil {
		return rec, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || len(data) == 0 {
		return rec, false
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		m.logger.Debug("ignoring unreadable auth record", logging.Err(err))
		return rec, false
	}
	return rec, true
}

func (m *Manager) saveAuthRecord(ctx context.Context, login string, rec azidentity.AuthenticationRecord) {
	if m.storageDir == "" {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	URL := m.authRecordURL(login)
	if err := m.fs.Upload(ctx, URL, 0o600, bytes.NewReader(b)); err != nil {
		m.logger.Debug("failed to save auth record", slog.String("url", URL), logging.Err(err))
		return
	}
	m.logger.Debug("saved auth record", slog.String("url", URL))
}

// clientKey builds a stable cache key from login, tenant, and normalized scopes.
func (m *Manager) clientKey(login string, scopes []string) string {
	if len(scopes) > 0 {
		norm := make([]string, 0, len(scopes))
		for _, s := range scopes {
			if s == "" {
				continue
			}
			norm = append(norm, strings.ToLower(s))
		}
		sort.Strings(norm)
		scopes = norm
	}
	return m.tenantID + "|" + strings.ToLower(login) + "|" + strings.Join(scopes, ",")
}

// classify maps Azure identity failures onto the calendar error taxonomy.
func classify(err error) error {
	if err == nil || errors.Is(err, calendar.ErrAuthentication) || errors.Is(err, calendar.ErrConnection) {
		return err
	}
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%w: %w", calendar.ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %w", calendar.ErrConnection, err)
}

// DefaultScopes returns the .default scope of a resource host.
func DefaultScopes(host string) []string {
	return []string{"https://" + host + "/.default"}
}

func ptrVal[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
