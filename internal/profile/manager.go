package profile

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	// SetProfileKeys writes all values atomically.
	SetProfileKeys(values map[string]string) error
	GetProfileKey(key string) (string, error)
	GetAllProfileKeys() (map[string]string, error)
}

// Stored key names. Booleans are "true"/"false", timestamps Unix ms.
const (
	keyZipcode              = "zipcode"
	keyNeighborhood         = "neighborhood"
	keyHousingType          = "housing_type"
	keyElderly              = "elderly"
	keyChildren             = "children"
	keyPets                 = "pets"
	keyMedical              = "medical"
	keyEvacuationCapability = "evacuation_capability"
	keyLanguage             = "language"
	keyCreatedAt            = "created_at"
	keyUpdatedAt            = "updated_at"
)

// fieldKeys maps the names accepted by SetField (JSON or stored form) to
// stored keys.
var fieldKeys = map[string]string{
	"zipcode":               keyZipcode,
	"neighborhood":          keyNeighborhood,
	"housingType":           keyHousingType,
	"housing_type":          keyHousingType,
	"elderly":               keyElderly,
	"children":              keyChildren,
	"pets":                  keyPets,
	"medical":               keyMedical,
	"evacuationCapability":  keyEvacuationCapability,
	"evacuation_capability": keyEvacuationCapability,
	"language":              keyLanguage,
}

var boolKeys = map[string]bool{
	keyElderly: true, keyChildren: true, keyPets: true, keyMedical: true,
}

// Manager provides cached access to the single user profile stored in SQLite.
type Manager struct {
	store ProfileStore
	clock clockwork.Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *UserProfile
	loaded   bool
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, clockwork.NewRealClock(), 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock clockwork.Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// Get returns the stored profile, or nil if none was ever saved.
func (m *Manager) Get() (*UserProfile, error) {
	m.mu.RLock()
	if m.loaded && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := copyProfile(m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return copyProfile(m.cached), nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return nil, fmt.Errorf("loading profile keys: %w", err)
	}

	m.cached = buildProfile(keys)
	m.loaded = true
	m.cachedAt = m.clock.Now()
	return copyProfile(m.cached), nil
}

// Save replaces the stored profile. CreatedAt is kept from the existing
// record (or set now on first save); UpdatedAt is always set to now.
func (m *Manager) Save(p UserProfile) (UserProfile, error) {
	existing, err := m.Get()
	if err != nil {
		return UserProfile{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if existing != nil && !existing.CreatedAt.IsZero() {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = MillisOf(now)
	}
	p.UpdatedAt = MillisOf(now)

	if err := m.store.SetProfileKeys(flattenProfile(p)); err != nil {
		return UserProfile{}, fmt.Errorf("saving profile: %w", err)
	}

	m.loaded = false
	m.cached = nil
	return p, nil
}

// SetField updates one profile field by name and invalidates the cache.
// Saving a field on an empty store creates the profile.
func (m *Manager) SetField(field, value string) error {
	key, ok := fieldKeys[field]
	if !ok {
		return fmt.Errorf("unknown profile field %q", field)
	}
	if boolKeys[key] {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("profile field %q expects true/false: %w", field, err)
		}
		value = strconv.FormatBool(b)
	}

	existing, err := m.Get()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := strconv.FormatInt(m.clock.Now().UnixMilli(), 10)
	values := map[string]string{key: value, keyUpdatedAt: now}
	if existing == nil {
		values[keyCreatedAt] = now
	}
	if err := m.store.SetProfileKeys(values); err != nil {
		return fmt.Errorf("setting profile field %q: %w", field, err)
	}

	m.loaded = false
	m.cached = nil
	return nil
}

// Fields lists the field names SetField accepts, in JSON form.
func Fields() []string {
	return []string{
		"zipcode", "neighborhood", "housingType", "elderly", "children",
		"pets", "medical", "evacuationCapability", "language",
	}
}

// MaxSummaryChars caps the profile summary injected into system prompts.
const MaxSummaryChars = 300

var languageNames = map[string]string{
	"en": "English",
	"es": "Español",
	"vi": "Tiếng Việt",
	"zh": "中文",
}

// LanguageName returns the display name for a language code, defaulting to
// English when the code is empty.
func LanguageName(code string) string {
	if code == "" {
		return "English"
	}
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// Summary renders the profile as the "User context" block of a system
// prompt, truncated to MaxSummaryChars bytes on a rune boundary.
func Summary(p *UserProfile) string {
	if p == nil {
		return ""
	}
	location := p.Neighborhood
	if location == "" {
		location = p.Zipcode
	}

	var b strings.Builder
	b.WriteString("User context:\n")
	fmt.Fprintf(&b, "- Location: %s\n", orDefault(location, "Houston area"))
	fmt.Fprintf(&b, "- Housing: %s\n", orDefault(p.HousingType, "not specified"))
	fmt.Fprintf(&b, "- Evacuation capability: %s\n", orDefault(p.EvacuationCapability, "not specified"))
	fmt.Fprintf(&b, "- Language preference: %s", LanguageName(p.Language))
	if h := p.Household(); len(h) > 0 {
		fmt.Fprintf(&b, "\n- Household: %s", strings.Join(h, ", "))
	}

	return truncate(b.String(), MaxSummaryChars)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func copyProfile(p *UserProfile) *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// buildProfile assembles a UserProfile from stored key-value pairs. It
// returns nil when the profile was never created.
func buildProfile(keys map[string]string) *UserProfile {
	created, ok := keys[keyCreatedAt]
	if !ok {
		return nil
	}
	p := &UserProfile{
		Zipcode:              keys[keyZipcode],
		Neighborhood:         keys[keyNeighborhood],
		HousingType:          keys[keyHousingType],
		Elderly:              parseBoolKey(keys, keyElderly),
		Children:             parseBoolKey(keys, keyChildren),
		Pets:                 parseBoolKey(keys, keyPets),
		Medical:              parseBoolKey(keys, keyMedical),
		EvacuationCapability: keys[keyEvacuationCapability],
		Language:             keys[keyLanguage],
	}
	p.CreatedAt = parseMillisKey(keyCreatedAt, created)
	p.UpdatedAt = parseMillisKey(keyUpdatedAt, keys[keyUpdatedAt])
	return p
}

func flattenProfile(p UserProfile) map[string]string {
	return map[string]string{
		keyZipcode:              p.Zipcode,
		keyNeighborhood:         p.Neighborhood,
		keyHousingType:          p.HousingType,
		keyElderly:              strconv.FormatBool(p.Elderly),
		keyChildren:             strconv.FormatBool(p.Children),
		keyPets:                 strconv.FormatBool(p.Pets),
		keyMedical:              strconv.FormatBool(p.Medical),
		keyEvacuationCapability: p.EvacuationCapability,
		keyLanguage:             p.Language,
		keyCreatedAt:            strconv.FormatInt(p.CreatedAt.UnixMilli(), 10),
		keyUpdatedAt:            strconv.FormatInt(p.UpdatedAt.UnixMilli(), 10),
	}
}

func parseBoolKey(keys map[string]string, key string) bool {
	v, ok := keys[key]
	if !ok || v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("malformed profile key, skipping", "key", key, "error", err)
		return false
	}
	return b
}

func parseMillisKey(key, v string) Millis {
	if v == "" {
		return Millis{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("malformed profile key, skipping", "key", key, "error", err)
		return Millis{}
	}
	return MillisOf(time.UnixMilli(ms))
}
