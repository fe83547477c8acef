package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ytarchive/internal/retry"
)

// JSONBin API constants. The service stores the whole catalog as a single
// JSON blob (a "bin") inside a named collection.
const (
	jsonbinBaseURL        = "https://api.jsonbin.io/v3"
	jsonbinCollectionName = "yt_archive_sync_collection"
	jsonbinBinName        = "DATA"
)

// JSONBinStore implements Store on a single JSONBin blob. The service has
// no per-record update, so every mutation is a read-modify-write of the
// full catalog guarded by a process-local mutex.
type JSONBinStore struct {
	key      string
	base     string
	httpc    *http.Client
	retryCfg retry.Config

	mu           sync.Mutex
	collectionID string
	binID        string // empty until the first write on a fresh account
}

// OpenJSONBin connects to JSONBin with the given master key and resolves
// (or creates) the catalog collection. The catalog bin itself is created
// lazily on the first write, matching first-run behavior where there is
// no data to store yet.
func OpenJSONBin(ctx context.Context, key string) (*JSONBinStore, error) {
	return openJSONBin(ctx, key, jsonbinBaseURL)
}

func openJSONBin(ctx context.Context, key, base string) (*JSONBinStore, error) {
	if key == "" {
		return nil, ErrNoBackend
	}
	s := &JSONBinStore{
		key:      key,
		base:     base,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		retryCfg: retry.DefaultConfig(),
	}
	if err := s.resolveCollection(ctx); err != nil {
		return nil, err
	}
	if err := s.resolveBin(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// apiError is a non-2xx JSONBin response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("jsonbin: status %d: %s", e.Status, e.Body)
}

// retryable treats network failures and 5xx responses as transient.
func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.Status >= 500
	}
	return retry.Transient(err)
}

// doJSON performs one authenticated request with retry, decoding the
// response body into out when non-nil.
func (s *JSONBinStore) doJSON(ctx context.Context, method, url string, headers map[string]string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &StorageError{Op: "encode", Entity: "bin", Err: err}
		}
	}

	return retry.Do(ctx, s.retryCfg, retryable, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("X-Master-Key", s.key)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := s.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &apiError{Status: resp.StatusCode, Body: string(data)}
		}
		if out != nil {
			return json.Unmarshal(data, out)
		}
		return nil
	})
}

// resolveCollection creates the catalog collection, falling back to
// looking it up when it already exists.
func (s *JSONBinStore) resolveCollection(ctx context.Context) error {
	var created struct {
		Record string `json:"record"`
	}
	err := s.doJSON(ctx, http.MethodPost, s.base+"/c",
		map[string]string{"X-Collection-Name": jsonbinCollectionName},
		map[string]any{}, &created)
	if err == nil && created.Record != "" {
		s.collectionID = created.Record
		return nil
	}

	var existing []struct {
		Record string `json:"record"`
	}
	if err := s.doJSON(ctx, http.MethodGet, s.base+"/c", nil, nil, &existing); err != nil {
		return &StorageError{Op: "resolve", Entity: "collection", Err: err}
	}
	if len(existing) == 0 {
		return &StorageError{Op: "resolve", Entity: "collection", Err: ErrNotFound}
	}
	s.collectionID = existing[0].Record
	return nil
}

// resolveBin looks for the catalog bin inside the collection. A missing
// bin is not an error; it is created on the first write.
func (s *JSONBinStore) resolveBin(ctx context.Context) error {
	var bins []struct {
		Record      string `json:"record"`
		SnippetMeta struct {
			Name string `json:"name"`
		} `json:"snippetMeta"`
	}
	url := fmt.Sprintf("%s/c/%s/bins", s.base, s.collectionID)
	if err := s.doJSON(ctx, http.MethodGet, url, nil, nil, &bins); err != nil {
		return &StorageError{Op: "resolve", Entity: "bin", Err: err}
	}
	for _, b := range bins {
		if b.SnippetMeta.Name == jsonbinBinName {
			s.binID = b.Record
			return nil
		}
	}
	return nil
}

// list reads the full catalog. Callers must hold s.mu.
func (s *JSONBinStore) list(ctx context.Context) ([]VideoRecord, error) {
	if s.binID == "" {
		return nil, nil
	}
	var out struct {
		Record []VideoRecord `json:"record"`
	}
	url := fmt.Sprintf("%s/b/%s", s.base, s.binID)
	if err := s.doJSON(ctx, http.MethodGet, url, nil, nil, &out); err != nil {
		return nil, &StorageError{Op: "list", Entity: "bin", ID: s.binID, Err: err}
	}
	return out.Record, nil
}

// write overwrites the full catalog, creating the bin on first use.
// Callers must hold s.mu.
func (s *JSONBinStore) write(ctx context.Context, recs []VideoRecord) error {
	if recs == nil {
		recs = []VideoRecord{}
	}
	if s.binID == "" {
		var created struct {
			Metadata struct {
				ID string `json:"id"`
			} `json:"metadata"`
		}
		err := s.doJSON(ctx, http.MethodPost, s.base+"/b",
			map[string]string{
				"X-Bin-Name":      jsonbinBinName,
				"X-Collection-Id": s.collectionID,
			}, recs, &created)
		if err != nil {
			return &StorageError{Op: "create", Entity: "bin", Err: err}
		}
		s.binID = created.Metadata.ID
		return nil
	}
	url := fmt.Sprintf("%s/b/%s", s.base, s.binID)
	if err := s.doJSON(ctx, http.MethodPut, url, nil, recs, nil); err != nil {
		return &StorageError{Op: "replace", Entity: "bin", ID: s.binID, Err: err}
	}
	return nil
}

// ListAll returns every record in the catalog blob.
func (s *JSONBinStore) ListAll(ctx context.Context) ([]VideoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(ctx)
}

// Upsert rewrites the blob with the partial fields applied to the matching
// record, creating the record when the id is absent.
func (s *JSONBinStore) Upsert(ctx context.Context, id string, fields Fields) error {
	if id == "" {
		return &StorageError{Op: "upsert", Entity: "video", Err: ErrInvalidInput}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.list(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range recs {
		if recs[i].ID == id {
			if err := recs[i].apply(fields); err != nil {
				return &StorageError{Op: "upsert", Entity: "video", ID: id, Err: err}
			}
			found = true
			break
		}
	}
	if !found {
		rec := VideoRecord{ID: id}
		if err := rec.apply(fields); err != nil {
			return &StorageError{Op: "upsert", Entity: "video", ID: id, Err: err}
		}
		recs = append(recs, rec)
	}
	return s.write(ctx, recs)
}

// InsertMany appends records whose ids are not already present.
func (s *JSONBinStore) InsertMany(ctx context.Context, recs []VideoRecord) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.list(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.ID] = true
	}
	added := false
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		existing = append(existing, r)
		added = true
	}
	if !added {
		return nil
	}
	return s.write(ctx, existing)
}

// ReplaceAll overwrites the catalog blob.
func (s *JSONBinStore) ReplaceAll(ctx context.Context, recs []VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, recs)
}

// Close is a no-op; the store holds no persistent connection.
func (s *JSONBinStore) Close(ctx context.Context) error { return nil }

var _ Store = (*JSONBinStore)(nil)
