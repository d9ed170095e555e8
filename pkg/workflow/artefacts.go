package workflow

import (
	"os"
	"path/filepath"
	"strings"
)

// ArtefactResult partitions one RegisterArtefacts call. Bad entries are
// reported per item; the call itself never fails.
type ArtefactResult struct {
	Registered []string `json:"registered"`
	Duplicates []string `json:"duplicates"`
	Invalid    []string `json:"invalid"`
}

// RegisterArtefacts resolves each candidate path (relative ones against
// Root), checks existence through the injected Exists func, dedups
// against already-registered artefacts, and appends the rest in input
// order. Duplicate and invalid entries are reported resolved.
func (m *Machine) RegisterArtefacts(paths []string) ArtefactResult {
	res := ArtefactResult{
		Registered: []string{},
		Duplicates: []string{},
		Invalid:    []string{},
	}
	if m.st == nil {
		for _, p := range paths {
			res.Invalid = append(res.Invalid, p)
		}
		return res
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			res.Invalid = append(res.Invalid, p)
			continue
		}
		resolved := p
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(m.Root, resolved)
		}
		resolved = filepath.Clean(resolved)

		if !m.pathExists(resolved) {
			res.Invalid = append(res.Invalid, resolved)
			continue
		}
		if m.st.HasArtefact(resolved) {
			res.Duplicates = append(res.Duplicates, resolved)
			continue
		}
		m.st.Artefacts = append(m.st.Artefacts, resolved)
		res.Registered = append(res.Registered, resolved)
	}
	return res
}

func (m *Machine) pathExists(path string) bool {
	if m.Exists != nil {
		return m.Exists(path)
	}
	_, err := os.Stat(path)
	return err == nil
}
