package graph

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/calcatime/calendar"
)

type fakeCredential struct {
	token string
	err   error
	calls int
}

func (f *fakeCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.calls++
	if f.err != nil {
		return azcore.AccessToken{}, f.err
	}
	return azcore.AccessToken{Token: f.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func managerWith(cred azcore.TokenCredential, factoryErr error) (*Manager, *int) {
	m := NewManager("client", "", "", nil)
	built := 0
	m.NewCredential = func(context.Context, calendar.Credentials, []string) (azcore.TokenCredential, error) {
		built++
		if factoryErr != nil {
			return nil, factoryErr
		}
		return cred, nil
	}
	return m, &built
}

func TestClientCacheKeyNormalization(t *testing.T) {
	m := NewManager("", "", "", nil)
	k1 := m.clientKey("Alice@contoso.com", []string{"scope2", "Scope1"})
	k2 := m.clientKey("alice@contoso.com", []string{"scope1", "scope2", ""})
	assert.Equal(t, k1, k2)
	assert.Equal(t, DefaultTenant, m.tenantID)
}

func TestClientReturnsCachedInstance(t *testing.T) {
	m := NewManager("", "tenant", "", nil)
	creds := calendar.Credentials{Username: "acc"}
	want := &msgraphsdk.GraphServiceClient{}
	m.mu.Lock()
	m.clients[m.clientKey(creds.Username, []string{"s1", "s2"})] = want
	m.mu.Unlock()

	got, err := m.Client(context.Background(), creds, []string{"s2", "s1"})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestCredentialIsCachedPerUser(t *testing.T) {
	m, built := managerWith(&fakeCredential{token: "t"}, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Credential(ctx, calendar.Credentials{Username: "Jdoe"}, nil)
		require.NoError(t, err)
	}
	_, err := m.Credential(ctx, calendar.Credentials{Username: "other"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, *built)
}

func TestToken(t *testing.T) {
	cred := &fakeCredential{token: "abc"}
	m, _ := managerWith(cred, nil)
	tok, err := m.Token(context.Background(), calendar.Credentials{Username: "jdoe"}, DefaultScopes("outlook.office365.com"))
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
	assert.Equal(t, 1, cred.calls)
}

func TestToken_ErrorsAreClassified(t *testing.T) {
	m, _ := managerWith(&fakeCredential{err: &azidentity.AuthenticationFailedError{}}, nil)
	_, err := m.Token(context.Background(), calendar.Credentials{Username: "jdoe"}, nil)
	assert.ErrorIs(t, err, calendar.ErrAuthentication)

	m, _ = managerWith(nil, errors.New("dial tcp: no route to host"))
	_, err = m.Token(context.Background(), calendar.Credentials{Username: "jdoe"}, nil)
	assert.ErrorIs(t, err, calendar.ErrConnection)
}

func TestAcquireCredential_RequiresClientID(t *testing.T) {
	m := NewManager("", "", "", nil)
	_, err := m.Credential(context.Background(), calendar.Credentials{Username: "jdoe", Password: "pw"}, nil)
	assert.ErrorIs(t, err, calendar.ErrAuthentication)
}

func TestAuthRecordRoundTrip(t *testing.T) {
	m := NewManager("client", "contoso.com", t.TempDir(), nil)
	ctx := context.Background()
	_, ok := m.loadAuthRecord(ctx, "jdoe@contoso.com")
	assert.False(t, ok)

	m.saveAuthRecord(ctx, "jdoe@contoso.com", azidentity.AuthenticationRecord{
		Username: "jdoe@contoso.com",
		TenantID: "contoso.com",
		Version:  "1.0",
	})
	rec, ok := m.loadAuthRecord(ctx, "jdoe@contoso.com")
	require.True(t, ok)
	assert.Equal(t, "jdoe@contoso.com", rec.Username)
	assert.Contains(t, m.authRecordURL("jdoe@contoso.com"), "contoso.com_jdoe_contoso.com_auth_record.json")
}

func TestLoadAuthRecord_IgnoresInvalidFiles(t *testing.T) {
	m := NewManager("client", "contoso.com", t.TempDir(), nil)
	ctx := context.Background()
	for _, content := range []string{
		`{"username":"jdoe@contoso.com","tenantId":"contoso.com"}`,
		`{"username":"jdoe@contoso.com","version":""}`,
		`not json`,
	} {
		require.NoError(t, os.WriteFile(m.authRecordURL("jdoe@contoso.com"), []byte(content), 0o600))
		_, ok := m.loadAuthRecord(ctx, "jdoe@contoso.com")
		assert.False(t, ok, content)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("CALCATIME_TEST_DIR", "/tmp/x")
	assert.Equal(t, "/tmp/x/y", ExpandPath("$CALCATIME_TEST_DIR/y"))
	assert.Equal(t, "", ExpandPath(""))
}
