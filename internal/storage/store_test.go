package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixil98/go-testutil"
)

// mockStoreSpec implements ValidatingSpec for testing FileStore
type mockStoreSpec struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func (s *mockStoreSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

func writeAsset(t *testing.T, path, id string, spec *mockStoreSpec) {
	t.Helper()

	data, err := json.Marshal(Asset[*mockStoreSpec]{Version: 1, Identifier: id, Spec: spec})
	if err != nil {
		t.Fatalf("failed to marshal test asset: %v", err)
	}
	err = os.WriteFile(path, data, 0644)
	if err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}

func newTestStore(t *testing.T) (*FileStore[*mockStoreSpec], string) {
	t.Helper()

	tmpDir := t.TempDir()
	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}
	return store, tmpDir
}

func TestNewFileStore(t *testing.T) {
	store, tmpDir := newTestStore(t)

	testutil.AssertEqual(t, "path", store.path, tmpDir)
	testutil.AssertEqual(t, "records length", len(store.records), 0)
}

func TestNewFileStore_NonExistentDirectory(t *testing.T) {
	_, err := NewFileStore[*mockStoreSpec]("/nonexistent/path/that/does/not/exist")
	if err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestNewFileStore_Loading(t *testing.T) {
	tests := map[string]struct {
		setup    func(t *testing.T, dir string)
		expCount int
		expErr   string
	}{
		"existing assets": {
			setup: func(t *testing.T, dir string) {
				writeAsset(t, filepath.Join(dir, "item-1.json"), "item-1", &mockStoreSpec{Name: "First", Value: 1})
				writeAsset(t, filepath.Join(dir, "item-2.json"), "item-2", &mockStoreSpec{Name: "Second", Value: 2})
			},
			expCount: 2,
		},
		"ignores non-json files": {
			setup: func(t *testing.T, dir string) {
				writeAsset(t, filepath.Join(dir, "valid.json"), "valid", &mockStoreSpec{Name: "Valid"})
				_ = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0644)
				_ = os.WriteFile(filepath.Join(dir, "valid.json.tmp"), []byte("{partial"), 0644)
			},
			expCount: 1,
		},
		"invalid json": {
			setup: func(t *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{invalid json`), 0644)
			},
			expErr: "unmarshalling asset",
		},
		"invalid spec": {
			setup: func(t *testing.T, dir string) {
				writeAsset(t, filepath.Join(dir, "test.json"), "test", &mockStoreSpec{})
			},
			expErr: "name is required",
		},
		"duplicate key": {
			setup: func(t *testing.T, dir string) {
				sub := filepath.Join(dir, "subdir")
				if err := os.Mkdir(sub, 0755); err != nil {
					t.Fatalf("failed to create subdir: %v", err)
				}
				writeAsset(t, filepath.Join(dir, "file1.json"), "duplicate-id", &mockStoreSpec{Name: "A"})
				writeAsset(t, filepath.Join(sub, "file2.json"), "duplicate-id", &mockStoreSpec{Name: "B"})
			},
			expErr: "duplicate key detected",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tmpDir := t.TempDir()
			tt.setup(t, tmpDir)

			store, err := NewFileStore[*mockStoreSpec](tmpDir)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "record count", len(store.records), tt.expCount)
		})
	}
}

func TestFileStore_Get(t *testing.T) {
	store, _ := newTestStore(t)
	store.records = map[string]*mockStoreSpec{
		"existing": {Name: "Test", Value: 42},
	}

	tests := map[string]struct {
		id       string
		expOK    bool
		expName  string
		expValue int
	}{
		"get existing record": {
			id:       "existing",
			expOK:    true,
			expName:  "Test",
			expValue: 42,
		},
		"get non-existing record": {
			id: "nonexistent",
		},
		"get empty id": {
			id: "",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			result, ok := store.Get(tt.id)
			testutil.AssertEqual(t, "ok", ok, tt.expOK)
			if !tt.expOK {
				return
			}
			testutil.AssertEqual(t, "name", result.Name, tt.expName)
			testutil.AssertEqual(t, "value", result.Value, tt.expValue)
		})
	}
}

func TestFileStore_GetAll(t *testing.T) {
	store, _ := newTestStore(t)
	store.records = map[string]*mockStoreSpec{
		"one": {Name: "One", Value: 1},
		"two": {Name: "Two", Value: 2},
	}

	result := store.GetAll()
	testutil.AssertEqual(t, "count", len(result), 2)

	delete(result, "one")
	testutil.AssertEqual(t, "original untouched", len(store.records), 2)
}

func TestFileStore_Save(t *testing.T) {
	store, tmpDir := newTestStore(t)

	err := store.Save("test-id", &mockStoreSpec{Name: "TestItem", Value: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cached, ok := store.Get("test-id")
	if !ok {
		t.Fatal("expected cached record")
	}
	testutil.AssertEqual(t, "cached name", cached.Name, "TestItem")

	data, err := os.ReadFile(filepath.Join(tmpDir, "test-id.json"))
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}

	var asset Asset[*mockStoreSpec]
	err = json.Unmarshal(data, &asset)
	if err != nil {
		t.Fatalf("failed to unmarshal saved data: %v", err)
	}

	testutil.AssertEqual(t, "asset version", asset.Version, uint(1))
	testutil.AssertEqual(t, "asset id", asset.Identifier, "test-id")
	testutil.AssertEqual(t, "spec value", asset.Spec.Value, 100)

	reloaded, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error reloading: %v", err)
	}
	again, ok := reloaded.Get("test-id")
	testutil.AssertEqual(t, "reloaded", ok, true)
	testutil.AssertEqual(t, "reloaded name", again.Name, "TestItem")
}

func TestFileStore_Save_Rejected(t *testing.T) {
	tests := map[string]struct {
		id     string
		spec   *mockStoreSpec
		expErr string
	}{
		"invalid spec": {
			id:     "ok",
			spec:   &mockStoreSpec{},
			expErr: "name is required",
		},
		"path traversal": {
			id:     "../escape",
			spec:   &mockStoreSpec{Name: "x"},
			expErr: "id must be alphanumeric",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store, _ := newTestStore(t)

			err := store.Save(tt.id, tt.spec)
			testutil.AssertErrorContains(t, err, tt.expErr)

			_, ok := store.Get(tt.id)
			testutil.AssertEqual(t, "cached", ok, false)
		})
	}
}

func TestFileStore_Create(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Create("abc", &mockStoreSpec{Name: "First"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = store.Create("abc", &mockStoreSpec{Name: "Second"})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, _ := store.Get("abc")
	testutil.AssertEqual(t, "name", got.Name, "First")
}

func TestFileStore_Update(t *testing.T) {
	tests := map[string]struct {
		id       string
		fn       func(*mockStoreSpec) (*mockStoreSpec, error)
		expErr   error
		expValue int
	}{
		"applies change": {
			id: "abc",
			fn: func(cur *mockStoreSpec) (*mockStoreSpec, error) {
				next := *cur
				next.Value++
				return &next, nil
			},
			expValue: 2,
		},
		"unchanged skips write": {
			id: "abc",
			fn: func(cur *mockStoreSpec) (*mockStoreSpec, error) {
				return cur, nil
			},
			expValue: 1,
		},
		"fn error aborts": {
			id: "abc",
			fn: func(cur *mockStoreSpec) (*mockStoreSpec, error) {
				return nil, errTest
			},
			expErr:   errTest,
			expValue: 1,
		},
		"missing record": {
			id: "nope",
			fn: func(cur *mockStoreSpec) (*mockStoreSpec, error) {
				return cur, nil
			},
			expErr:   ErrNotFound,
			expValue: 1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store, _ := newTestStore(t)
			if err := store.Create("abc", &mockStoreSpec{Name: "A", Value: 1}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			err := store.Update(tt.id, tt.fn)
			if tt.expErr != nil {
				if !errors.Is(err, tt.expErr) {
					t.Fatalf("expected %v, got %v", tt.expErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, _ := store.Get("abc")
			testutil.AssertEqual(t, "value", got.Value, tt.expValue)
		})
	}
}

var errTest = errors.New("test failure")

func TestFileStore_Delete(t *testing.T) {
	store, tmpDir := newTestStore(t)
	if err := store.Create("abc", &mockStoreSpec{Name: "A"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := store.Delete("abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, ok := store.Get("abc")
	testutil.AssertEqual(t, "cached", ok, false)

	_, err = os.Stat(filepath.Join(tmpDir, "abc.json"))
	testutil.AssertEqual(t, "file removed", errors.Is(err, os.ErrNotExist), true)

	err = store.Delete("abc")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_filePath(t *testing.T) {
	store, tmpDir := newTestStore(t)

	result := store.filePath("test-id")

	expected := filepath.Join(tmpDir, "test-id.json")
	testutil.AssertEqual(t, "file path", result, expected)
}
