package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evoplatform/sdk-go/evo"
)

// tokenFilePerms restricts saved token files to owner-only read/write.
const tokenFilePerms = 0o600

// tokenDirPerms is used when creating the directory holding a token file.
const tokenDirPerms = 0o700

// storedToken is the on-disk shape written by FileTokenStore. It mirrors
// evo.AccessToken field-for-field rather than embedding it directly so the
// wire format doesn't change if AccessToken grows unrelated fields later.
type storedToken struct {
	TokenType    string  `json:"token_type"`
	Token        string  `json:"access_token"`
	ExpiresIn    *int    `json:"expires_in,omitempty"`
	IssuedAtUnix int64   `json:"issued_at"`
	Scope        *string `json:"scope,omitempty"`
	IDToken      *string `json:"id_token,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`
}

// FileTokenStore returns a callback suitable for AuthCodeAuthorizer's
// OnTokenChange hook: it persists every new token to path, atomically, so a
// refreshed refresh-token survives a process restart. A failed write is
// returned as the hook's error for the caller to log; LoadFileTokenStore is
// its counterpart for restoring a cached token at startup.
func FileTokenStore(path string) func(*evo.AccessToken) error {
	return func(tok *evo.AccessToken) error {
		return saveToken(path, tok)
	}
}

// LoadFileTokenStore reads a token previously written by FileTokenStore.
// It returns (nil, nil) if no file exists at path yet.
func LoadFileTokenStore(path string) (*evo.AccessToken, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // sentinel for "no cached token"
	}

	if err != nil {
		return nil, fmt.Errorf("auth: reading token file %s: %w", path, err)
	}

	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("auth: decoding token file %s: %w", path, err)
	}

	return &evo.AccessToken{
		TokenType:    st.TokenType,
		Token:        st.Token,
		ExpiresIn:    st.ExpiresIn,
		IssuedAt:     time.Unix(st.IssuedAtUnix, 0),
		Scope:        st.Scope,
		IDToken:      st.IDToken,
		RefreshToken: st.RefreshToken,
	}, nil
}

func saveToken(path string, tok *evo.AccessToken) error {
	st := storedToken{
		TokenType:    tok.TokenType,
		Token:        tok.Token,
		ExpiresIn:    tok.ExpiresIn,
		IssuedAtUnix: tok.IssuedAt.Unix(),
		Scope:        tok.Scope,
		IDToken:      tok.IDToken,
		RefreshToken: tok.RefreshToken,
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: encoding token: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, tokenDirPerms); err != nil {
		return fmt.Errorf("auth: creating directory %s: %w", dir, err)
	}

	// Atomic write: temp file in the same directory (same filesystem, so
	// rename(2) is atomic), then rename over the final path.
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("auth: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, tokenFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("auth: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("auth: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("auth: renaming: %w", err)
	}

	renamed = true

	return nil
}
