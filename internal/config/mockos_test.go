package config_test

import (
	"fmt"
	"os"
	"time"
)

// mockOS implements config.OSInterface against in-memory files and env vars.
type mockOS struct {
	files   map[string][]byte
	envVars map[string]string
}

func (m *mockOS) Getenv(key string) string {
	return m.envVars[key]
}

func (m *mockOS) Environ() []string {
	environ := make([]string, 0, len(m.envVars))
	for k, v := range m.envVars {
		environ = append(environ, k+"="+v)
	}
	return environ
}

func (m *mockOS) Stat(name string) (os.FileInfo, error) {
	if _, ok := m.files[name]; !ok {
		return nil, os.ErrNotExist
	}
	return mockFileInfo{name: name}, nil
}

func (m *mockOS) ReadFile(filename string) ([]byte, error) {
	data, ok := m.files[filename]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", filename)
	}
	return data, nil
}

type mockFileInfo struct {
	name string
}

func (f mockFileInfo) Name() string       { return f.name }
func (f mockFileInfo) Size() int64        { return 0 }
func (f mockFileInfo) Mode() os.FileMode  { return 0644 }
func (f mockFileInfo) ModTime() time.Time { return time.Time{} }
func (f mockFileInfo) IsDir() bool        { return false }
func (f mockFileInfo) Sys() any           { return nil }
