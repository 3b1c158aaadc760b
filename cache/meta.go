package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/evoplatform/sdk-go/evo"
)

// environmentMetaFile is the name of the TOML file written at a cache
// root to remember which Environment it was last scoped to. This is a
// convenience beyond the original cache utility, letting a service client
// restore its (hub, org, workspace) context without a database.
const environmentMetaFile = "environment.toml"

// environmentMeta is the on-disk TOML shape for a cached Environment.
type environmentMeta struct {
	HubURL      string `toml:"hub_url"`
	OrgID       string `toml:"org_id"`
	WorkspaceID string `toml:"workspace_id"`
}

// SaveEnvironmentMeta records env as the cache root's last-used
// environment.
func (c *Cache) SaveEnvironmentMeta(env evo.Environment) error {
	meta := environmentMeta{
		HubURL:      env.HubURL,
		OrgID:       env.OrgID.String(),
		WorkspaceID: env.WorkspaceID.String(),
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(meta); err != nil {
		return fmt.Errorf("cache: encoding environment metadata: %w", err)
	}

	path := filepath.Join(c.root, environmentMetaFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("cache: writing environment metadata: %w", err)
	}

	return nil
}

// LoadEnvironmentMeta reads back the environment last saved with
// SaveEnvironmentMeta. It returns os.ErrNotExist (wrapped) if the cache
// root has never had one saved.
func (c *Cache) LoadEnvironmentMeta() (evo.Environment, error) {
	path := filepath.Join(c.root, environmentMetaFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return evo.Environment{}, fmt.Errorf("cache: reading environment metadata: %w", err)
	}

	var meta environmentMeta
	if _, err := toml.Decode(string(data), &meta); err != nil {
		return evo.Environment{}, fmt.Errorf("cache: parsing environment metadata: %w", err)
	}

	orgID, err := uuid.Parse(meta.OrgID)
	if err != nil {
		return evo.Environment{}, fmt.Errorf("cache: parsing org_id: %w", err)
	}

	workspaceID, err := uuid.Parse(meta.WorkspaceID)
	if err != nil {
		return evo.Environment{}, fmt.Errorf("cache: parsing workspace_id: %w", err)
	}

	return evo.Environment{HubURL: meta.HubURL, OrgID: orgID, WorkspaceID: workspaceID}, nil
}
