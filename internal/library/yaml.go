package library

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a song library YAML file.
//
// Example:
//
//	organization: "grace-chapel"
//	songs:
//	  - title: "Amazing Grace"
//	    artist: "John Newton"
//	    lyrics: |
//	      Amazing grace, how sweet the sound
//	      That saved a wretch like me
type File struct {
	Organization string `yaml:"organization"`
	Songs        []Song `yaml:"songs"`
}

// LoadFile reads and parses a song library YAML file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("library: open %q: %w", path, err)
	}
	defer f.Close()

	lf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("library: parse %q: %w", path, err)
	}
	return lf, nil
}

// LoadFromReader parses song library YAML from r. Songs without an
// organization inherit the file's; songs without a title are rejected.
func LoadFromReader(r io.Reader) (*File, error) {
	var lf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lf); err != nil {
		if err == io.EOF {
			return &lf, nil
		}
		return nil, fmt.Errorf("library: decode yaml: %w", err)
	}
	for i := range lf.Songs {
		if lf.Songs[i].Title == "" {
			return nil, fmt.Errorf("library: song %d: title is required", i)
		}
		if lf.Songs[i].Organization == "" {
			lf.Songs[i].Organization = lf.Organization
		}
		if lf.Songs[i].Source == "" {
			lf.Songs[i].Source = SourceLocal
		}
	}
	return &lf, nil
}

// NewMemStoreFromFile loads path into a fresh [MemStore].
func NewMemStoreFromFile(path string) (*MemStore, error) {
	lf, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := NewMemStore()
	for _, song := range lf.Songs {
		s.Add(song)
	}
	return s, nil
}
