package scaffold

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/parley/internal/agent"
	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/marketplace"
	"github.com/dyluth/parley/pkg/negotiation"
)

//go:embed templates/*
var templatesFS embed.FS

// PoliciesDir holds the scripted agent policies of a scaffolded project
const PoliciesDir = "policies"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string // Relative to the project directory
	Content     []byte
	Permissions os.FileMode
}

// templates maps template names to their output paths
var templates = []struct {
	name string
	path string
}{
	{"seller.yml.tmpl", "seller.yml"},
	{"buyer.toml.tmpl", "buyer.toml"},
	{"seller-policy.yml.tmpl", filepath.Join(PoliciesDir, "seller.yml")},
	{"buyer-policy.yml.tmpl", filepath.Join(PoliciesDir, "buyer.yml")},
}

// Initialize writes a two-party demo project into dir: a seller config, a buyer config,
// their scripted agent policies and a freshly generated opening offer.
// If force is true, existing project files are removed first.
// Returns the created paths, relative to dir.
func Initialize(dir string, force bool) ([]string, error) {
	if force {
		if err := handleForce(dir); err != nil {
			return nil, err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return nil, err
	}

	offer, err := openingOffer()
	if err != nil {
		return nil, err
	}
	files = append(files, offer)

	if err := os.MkdirAll(filepath.Join(dir, PoliciesDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", PoliciesDir, err)
	}

	created := make([]string, 0, len(files))
	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file.Path), file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		created = append(created, file.Path)
	}

	if err := validateCreatedFiles(dir); err != nil {
		return nil, err
	}

	return created, nil
}

// handleForce removes existing project files from dir
func handleForce(dir string) error {
	for _, name := range projectFiles() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// getTemplateFiles reads all embedded templates
func getTemplateFiles() ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(templates))
	for _, tmpl := range templates {
		content, err := templatesFS.ReadFile("templates/" + tmpl.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", tmpl.name, err)
		}
		files = append(files, FileInfo{Path: tmpl.path, Content: content, Permissions: 0644})
	}
	return files, nil
}

// openingOffer generates offer.json with a fresh offer ID, from the buyer policy's key
func openingOffer() (FileInfo, error) {
	env, err := marketplace.NewOffer("0xb0b", "train a model",
		marketplace.Token{Standard: marketplace.ERC20, Address: "0xa0b8", Amount: 100})
	if err != nil {
		return FileInfo{}, err
	}

	content, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to encode offer: %w", err)
	}
	return FileInfo{Path: "offer.json", Content: append(content, '\n'), Permissions: 0644}, nil
}

// validateCreatedFiles loads every created file the way 'parley run' would
func validateCreatedFiles(dir string) error {
	for _, name := range []string{"seller.yml", "buyer.toml"} {
		cfg, err := config.Read(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("created %s is invalid: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("created %s is invalid: %w", name, err)
		}
	}

	for _, name := range []string{"seller.yml", "buyer.yml"} {
		if _, err := agent.LoadPolicy(filepath.Join(dir, PoliciesDir, name)); err != nil {
			return fmt.Errorf("created policy is invalid: %w", err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, "offer.json"))
	if err != nil {
		return fmt.Errorf("failed to read created offer.json: %w", err)
	}
	if _, err := negotiation.Decode[marketplace.Message](raw); err != nil {
		return fmt.Errorf("created offer.json is invalid: %w", err)
	}

	return nil
}
