package auth

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func newFileStore(t *testing.T, fs afero.Fs, passphrase string) *EncryptedFileStore {
	t.Helper()
	store, err := NewEncryptedFileStoreFs(fs, "/cfg/kemonosync/credentials.enc", passphrase)
	require.NoError(t, err)
	return store
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newFileStore(t, fs, "correct horse")

	require.NoError(t, store.Store(&Account{Username: "bob", Password: "hunter22"}))
	require.NoError(t, store.Store(&Account{Username: "alice", Password: "s3cret-pass", Hostname: "kemono.su"}))

	got, err := store.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", got.Password)
	assert.Equal(t, "kemono.su", got.Hostname)

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "bob", accounts[1].Username)

	raw, err := afero.ReadFile(fs, "/cfg/kemonosync/credentials.enc")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret-pass")
	assert.NotContains(t, string(raw), "hunter22")

	info, err := fs.Stat("/cfg/kemonosync/credentials.enc")
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, newFileStore(t, fs, "one").Store(&Account{Username: "alice", Password: "pw"}))

	_, err := newFileStore(t, fs, "two").Retrieve("alice")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong passphrase")
}

func TestEncryptedFileStoreDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newFileStore(t, fs, "pass")
	require.NoError(t, store.Store(&Account{Username: "alice", Password: "pw"}))

	assert.ErrorIs(t, store.Delete("nobody"), ErrCredentialsNotFound)
	require.NoError(t, store.Delete("alice"))
	assert.False(t, store.Exists("alice"))

	exists, err := afero.Exists(fs, "/cfg/kemonosync/credentials.enc")
	require.NoError(t, err)
	assert.False(t, exists, "file removed with the last account")
}

func TestEncryptedFileStoreMissingFile(t *testing.T) {
	store := newFileStore(t, afero.NewMemMapFs(), "pass")

	_, err := store.Retrieve("alice")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(EnvUsername, "alice")
	t.Setenv(EnvPassword, "pw")
	t.Setenv(EnvHostname, "coomer.su")

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "coomer.su", account.Hostname)

	assert.True(t, store.Exists("alice"))
	assert.False(t, store.Exists("bob"))
	assert.ErrorIs(t, store.Store(account), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("alice"), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{Username: "bob", Password: "pw1"}))
	require.NoError(t, store.Store(&Account{Username: "alice", Password: "pw2"}))
	require.NoError(t, store.Store(&Account{Username: "alice", Password: "pw3"}))

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "pw3", accounts[0].Password)

	require.NoError(t, store.Delete("alice"))
	assert.False(t, store.Exists("alice"))
	assert.ErrorIs(t, store.Delete("alice"), ErrCredentialsNotFound)

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "bob", accounts[0].Username)
}

func TestManagerFallsBackAndResolves(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	fileStore := newFileStore(t, afero.NewMemMapFs(), "pass")
	manager := NewManagerWithStores(NewEnvironmentStore(), fileStore)

	assert.Error(t, manager.Store(&Account{Username: "alice"}), "password is required")
	require.NoError(t, manager.Store(&Account{Username: "zoe", Password: "pw"}))
	require.NoError(t, manager.Store(&Account{Username: "alice", Password: "pw"}))
	assert.True(t, fileStore.Exists("alice"), "environment store refuses writes")

	account, err := manager.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Username, "first account by name")

	t.Setenv(EnvUsername, "envuser")
	t.Setenv(EnvPassword, "envpw")
	account, err = manager.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "envuser", account.Username, "environment wins when no account is named")

	account, err = manager.Resolve("zoe")
	require.NoError(t, err)
	assert.Equal(t, "zoe", account.Username)

	_, err = manager.Resolve("nobody")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerDelete(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	manager := NewManagerWithStores(newFileStore(t, afero.NewMemMapFs(), "pass"), NewEnvironmentStore())
	require.NoError(t, manager.Store(&Account{Username: "alice", Password: "pw"}))

	require.NoError(t, manager.Delete("alice"))
	assert.ErrorIs(t, manager.Delete("alice"), ErrCredentialsNotFound)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSanitizeAccount(t *testing.T) {
	account := &Account{Username: "alice", Password: "a-long-password"}

	clean := SanitizeAccount(account)

	assert.Equal(t, "alice", clean.Username)
	assert.Equal(t, "a-...rd", clean.Password)
	assert.Equal(t, "a-long-password", account.Password, "original untouched")
	assert.Equal(t, "********", SanitizeAccount(&Account{Password: "short"}).Password)
	assert.Nil(t, SanitizeAccount(nil))
}
