package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-at-pretension-io/s7pciehost/internal/config"
	"github.com/robert-at-pretension-io/s7pciehost/internal/policy"
)

const resultCacheVersion = 1

// resultCacheEntry holds everything needed to replay a run without
// elaborating: the result and the contents of the generated files by kind
type resultCacheEntry struct {
	Version    int               `json:"version"`
	ConfigHash string            `json:"config_hash"`
	Result     Result            `json:"result"`
	Files      map[string]string `json:"files"`
}

func loadResultCache(dir string) (*resultCacheEntry, error) {
	data, err := os.ReadFile(resultCachePath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry resultCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse result cache: %w", err)
	}
	return &entry, nil
}

func saveResultCache(dir string, entry resultCacheEntry) error {
	if err := writeJSONAtomic(resultCachePath(dir), entry); err != nil {
		return fmt.Errorf("write result cache: %w", err)
	}
	return nil
}

func resultCachePath(dir string) string {
	return filepath.Join(dir, "result_cache.json")
}

func resultCacheValid(entry *resultCacheEntry, hash string) bool {
	if entry == nil {
		return false
	}
	if entry.Version != resultCacheVersion || entry.ConfigHash != hash {
		return false
	}
	for _, kind := range []string{kindTcl, kindXDC, kindVerilog, kindFacts} {
		if _, ok := entry.Files[kind]; !ok {
			return false
		}
	}
	return true
}

// configHash fingerprints the configuration together with the design rules
func configHash(cfg *config.Config) (string, error) {
	rules, err := policy.RulesHash()
	if err != nil {
		return "", err
	}
	payload := struct {
		Version int            `json:"version"`
		Config  *config.Config `json:"config"`
		Rules   string         `json:"rules"`
	}{
		Version: resultCacheVersion,
		Config:  cfg,
		Rules:   rules,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal config hash: %w", err)
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// writeFileAtomic replaces path through a temporary file in the same
// directory, so readers never see a partial artifact
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
