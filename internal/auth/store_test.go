package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestFileTokenStore_SaveLoad(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "nested", "token.json")
	store := NewFileTokenStore(tokenPath)

	expiry := time.Now().Add(1 * time.Hour)
	token := &oauth2.Token{
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		Expiry:       expiry,
		TokenType:    "Bearer",
	}

	if err := store.SaveToken(token); err != nil {
		t.Fatalf("SaveToken() returned an error: %v", err)
	}

	info, err := os.Stat(tokenPath)
	if err != nil {
		t.Fatalf("token file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected token file mode 0600, got %o", perm)
	}

	loadedToken, err := store.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() returned an error: %v", err)
	}
	if loadedToken == nil {
		t.Fatal("LoadToken() returned nil token")
	}

	if loadedToken.AccessToken != token.AccessToken {
		t.Errorf("Expected AccessToken to be '%s', got '%s'", token.AccessToken, loadedToken.AccessToken)
	}
	if loadedToken.RefreshToken != token.RefreshToken {
		t.Errorf("Expected RefreshToken to be '%s', got '%s'", token.RefreshToken, loadedToken.RefreshToken)
	}
	if !loadedToken.Expiry.Equal(token.Expiry) {
		t.Errorf("Expected Expiry to be %v, got %v", token.Expiry, loadedToken.Expiry)
	}
}

func TestFileTokenStore_LoadEmpty(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "nonexistent.json"))

	token, err := store.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() should not return an error for non-existent file, got: %v", err)
	}
	if token != nil {
		t.Errorf("LoadToken() should return nil for non-existent file, got: %v", token)
	}
}

func TestFileTokenStore_LoadCorrupt(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(tokenPath, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileTokenStore(tokenPath).LoadToken(); err == nil {
		t.Error("LoadToken() should fail for a corrupt token file")
	}
}

func TestFileTokenStore_SaveReplaces(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")
	store := NewFileTokenStore(tokenPath)

	for _, access := range []string{"first", "second"} {
		if err := store.SaveToken(&oauth2.Token{AccessToken: access, RefreshToken: "refresh"}); err != nil {
			t.Fatalf("SaveToken(%s) returned an error: %v", access, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "token.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only token.json in %s, got %v", dir, names)
	}

	token, err := store.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() returned an error: %v", err)
	}
	if token == nil || token.AccessToken != "second" {
		t.Errorf("Expected the second token, got %v", token)
	}
}

func TestFileTokenStore_SaveFailureKeepsToken(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")
	store := NewFileTokenStore(tokenPath)
	if err := store.SaveToken(&oauth2.Token{AccessToken: "kept"}); err != nil {
		t.Fatal(err)
	}

	if err := os.Chmod(dir, 0500); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0700)
	if os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	if err := store.SaveToken(&oauth2.Token{AccessToken: "lost"}); err == nil {
		t.Fatal("SaveToken() should fail in a read-only directory")
	}
	token, err := store.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() returned an error: %v", err)
	}
	if token == nil || token.AccessToken != "kept" {
		t.Errorf("Expected the previous token to survive, got %v", token)
	}
}

func TestFileTokenStore_ScopeMismatch(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	data := `{"scopes":["https://www.googleapis.com/auth/calendar.readonly"],"access_token":"a","refresh_token":"r"}`
	if err := os.WriteFile(tokenPath, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	token, err := NewFileTokenStore(tokenPath).LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() returned an error: %v", err)
	}
	if token != nil {
		t.Errorf("Expected a token missing the sheets scope to be ignored, got %v", token)
	}
}

func TestFileTokenStore_LoadWithoutScopes(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(tokenPath, []byte(`{"access_token":"a","refresh_token":"r"}`), 0600); err != nil {
		t.Fatal(err)
	}

	token, err := NewFileTokenStore(tokenPath).LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() returned an error: %v", err)
	}
	if token == nil || token.RefreshToken != "r" {
		t.Errorf("Expected the token to load, got %v", token)
	}
}
