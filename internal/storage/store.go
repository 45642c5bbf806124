package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mkerr/briefcast/internal/bulletin"
)

var (
	profilesBucket  = []byte("profiles")
	bulletinsBucket = []byte("bulletins")
	metaBucket      = []byte("metadata")

	activeProfileKey = []byte("active_profile")
)

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{profilesBucket, bulletinsBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	s := &Store{db: db}
	if err := s.seedDefaultProfile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// seedDefaultProfile creates the default profile with the stock sources on
// first open and points the active-profile marker at it.
func (s *Store) seedDefaultProfile() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(profilesBucket)
		if b.Get([]byte(DefaultProfileID)) != nil {
			return nil
		}

		profile := Profile{
			ID:      DefaultProfileID,
			Name:    "Default",
			Sources: DefaultSources(),
		}
		data, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(profile.ID), data); err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Put(activeProfileKey, []byte(DefaultProfileID))
	})
}

func (s *Store) SaveProfile(profile *Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile ID cannot be empty")
	}
	if err := validateSourceNames(profile.Sources); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		return tx.Bucket(profilesBucket).Put([]byte(profile.ID), data)
	})
}

func (s *Store) GetProfile(id string) (*Profile, error) {
	var profile Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(profilesBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("profile not found")
		}
		return json.Unmarshal(data, &profile)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Store) ListProfiles() ([]*Profile, error) {
	var profiles []*Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(profilesBucket).ForEach(func(_, v []byte) error {
			var profile Profile
			if err := json.Unmarshal(v, &profile); err != nil {
				return err
			}
			profiles = append(profiles, &profile)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(profiles, func(i, j int) bool {
		// Default first, the rest by ID.
		if profiles[i].ID == DefaultProfileID {
			return true
		}
		if profiles[j].ID == DefaultProfileID {
			return false
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

// DeleteProfile removes a profile. The default profile cannot be deleted;
// deleting the active profile switches the active marker back to default.
func (s *Store) DeleteProfile(id string) error {
	if id == DefaultProfileID {
		return fmt.Errorf("cannot delete default profile")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(profilesBucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("profile not found")
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		meta := tx.Bucket(metaBucket)
		if string(meta.Get(activeProfileKey)) == id {
			return meta.Put(activeProfileKey, []byte(DefaultProfileID))
		}
		return nil
	})
}

func (s *Store) ActiveProfileID() (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		id = string(tx.Bucket(metaBucket).Get(activeProfileKey))
		return nil
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		id = DefaultProfileID
	}
	return id, nil
}

func (s *Store) SetActiveProfile(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(profilesBucket).Get([]byte(id)) == nil {
			return fmt.Errorf("profile not found")
		}
		return tx.Bucket(metaBucket).Put(activeProfileKey, []byte(id))
	})
}

// ActiveProfile returns the profile the next bulletin run will use.
func (s *Store) ActiveProfile() (*Profile, error) {
	id, err := s.ActiveProfileID()
	if err != nil {
		return nil, err
	}
	return s.GetProfile(id)
}

// UpdateSources replaces a profile's source list wholesale, preserving the
// given order.
func (s *Store) UpdateSources(profileID string, sources []SourceConfig) error {
	profile, err := s.GetProfile(profileID)
	if err != nil {
		return err
	}
	profile.Sources = sources
	return s.SaveProfile(profile)
}

// AddCustomSource appends a user-defined source to a profile.
func (s *Store) AddCustomSource(profileID string, source SourceConfig) error {
	profile, err := s.GetProfile(profileID)
	if err != nil {
		return err
	}
	for _, existing := range profile.Sources {
		if existing.Name == source.Name {
			return fmt.Errorf("source %q already exists", source.Name)
		}
	}
	source.Custom = true
	profile.Sources = append(profile.Sources, source)
	return s.SaveProfile(profile)
}

// RemoveSource deletes a source from a profile by name.
func (s *Store) RemoveSource(profileID, sourceName string) error {
	profile, err := s.GetProfile(profileID)
	if err != nil {
		return err
	}
	for i, existing := range profile.Sources {
		if existing.Name == sourceName {
			profile.Sources = append(profile.Sources[:i], profile.Sources[i+1:]...)
			return s.SaveProfile(profile)
		}
	}
	return fmt.Errorf("source not found")
}

func (s *Store) SaveBulletin(result *bulletin.Result) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return tx.Bucket(bulletinsBucket).Put([]byte(result.ID), data)
	})
}

func (s *Store) GetBulletin(id string) (*bulletin.Result, error) {
	var result bulletin.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bulletinsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("bulletin not found")
		}
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RecentBulletins returns up to limit bulletin records, newest first.
func (s *Store) RecentBulletins(limit int) ([]*bulletin.Result, error) {
	var results []*bulletin.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bulletinsBucket).ForEach(func(_, v []byte) error {
			var result bulletin.Result
			if err := json.Unmarshal(v, &result); err != nil {
				return err
			}
			results = append(results, &result)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].GeneratedAt.After(results[j].GeneratedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func validateSourceNames(sources []SourceConfig) error {
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.Name == "" {
			return fmt.Errorf("source name cannot be empty")
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}
