package sync

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

type MappingFile struct {
	Name   string
	Reader io.Reader
	Length int
}

// EmbeddedMappings is the layout of the connector mapping files:
//
//	<root>/required.yaml
//	<root>/defaults.yaml
//	<root>/connectors/<ORG>/<LABEL>.yaml
type EmbeddedMappings struct {
	Root  string
	Files EmbeddedFS
}

type EmbeddedFS interface {
	Open(name string) (fs.File, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

func (em EmbeddedMappings) MustFindRootMappingFile(filename string) (MappingFile, error) {
	var result MappingFile
	name := path.Join(em.Root, filename)
	mappings, err := em.Files.ReadFile(name)
	if err == nil {
		result.Name = name
		result.Reader = bytes.NewReader(mappings)
		result.Length = len(mappings)
	}
	return result, err
}

func (em EmbeddedMappings) MustFindRequiredMappingFile() (MappingFile, error) {
	return em.MustFindRootMappingFile("required.yaml")
}

func (em EmbeddedMappings) MustFindDefaultsMappingFile() (MappingFile, error) {
	return em.MustFindRootMappingFile("defaults.yaml")
}

// MustFindConnectorMappingFileByPath finds the mapping file for a MAPPING_PATH of the form ORG/LABEL.
// The file must live in connectors/ORG and its name must start with LABEL.
func (em EmbeddedMappings) MustFindConnectorMappingFileByPath(mappingPath string) (MappingFile, error) {
	var result MappingFile
	org, label, found := strings.Cut(mappingPath, "/")
	if !found || org == "" || label == "" {
		return result, fmt.Errorf("invalid mapping path %q expected ORG/LABEL", mappingPath)
	}
	dir := path.Join(em.Root, "connectors", org)
	files, err := em.Files.ReadDir(dir)
	if err != nil {
		return result, err
	}
	for _, file := range files {
		p := file.Name()
		if file.IsDir() || !strings.HasPrefix(p, label) {
			continue
		}
		// multiple matches are not supported - guard against misconfiguration
		if result.Name != "" {
			return result, fmt.Errorf("found multiple mapping files with prefix: %s in dir: %s", label, dir)
		}
		p = path.Join(dir, p)
		var connectorMappings []byte
		connectorMappings, err = em.Files.ReadFile(p)
		if err != nil {
			return result, err
		}
		result.Name = p
		result.Reader = bytes.NewReader(connectorMappings)
		result.Length = len(connectorMappings)
	}
	if result.Name == "" {
		err = fmt.Errorf("failed to find mapping file with prefix: %s in dir: %s", label, dir)
	}
	return result, err
}
