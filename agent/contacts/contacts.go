// Package contacts owns the emergency-contact records cached on the device
// and the derivation of the dispatch-ready phone list sent with every alert.
package contacts

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
	"github.com/shieldx/companion/agent/store"
)

var ErrNoEmergencyContacts = errors.New("no valid emergency contacts found")

var (
	phoneRegexp = regexp.MustCompile(`^\d{10,14}$`)

	// Loosely formatted numbers are accepted and canonicalized, separators
	// are stripped before the digit check.
	separatorReplacer = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

	validate *validator.Validate
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("phone_number", func(fl validator.FieldLevel) bool {
		_, ok := CanonicalPhoneNumber(fl.Field().String())
		return ok
	})
}

type EmergencyContact struct {
	// ID is assigned by the backend, treated as an opaque token.
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" validate:"required"`
	Relation string `json:"relation" validate:"required"`
	Phone    string `json:"phone" validate:"required,phone_number"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Priority int    `json:"priority"`
}

func (c *EmergencyContact) Validate() error {
	return validate.Struct(c)
}

// CanonicalPhoneNumber strips separators and reports whether what remains is
// a 10-14 digit string.
func CanonicalPhoneNumber(raw string) (string, bool) {
	phone := separatorReplacer.Replace(strings.TrimSpace(raw))
	return phone, phoneRegexp.MatchString(phone)
}

// NormalizePhoneNumbers filters a heterogeneous list down to dispatch-ready
// phone numbers, preserving input order. Entries that cannot be canonicalized
// are silently dropped; the list is best effort by design of the alert chain.
// Pure function, no I/O.
func NormalizePhoneNumbers(rawList []interface{}) []string {
	valid := []string{}
	for _, raw := range rawList {
		phone, ok := CanonicalPhoneNumber(coercePhone(raw))
		if !ok {
			continue
		}
		valid = append(valid, phone)
	}

	return valid
}

func coercePhone(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case EmergencyContact:
		return v.Phone
	case *EmergencyContact:
		return v.Phone
	case map[string]interface{}:
		for _, field := range []string{"phone", "phone_number", "phoneNumber"} {
			if nested, ok := v[field]; ok {
				return coercePhone(nested)
			}
		}
	}

	return ""
}

// Manager keeps the contact cache and the derived phone list consistent.
// The phone list is always recomputed from the full contact set on every
// mutation, never patched in place.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

func (m *Manager) List() ([]EmergencyContact, error) {
	list := []EmergencyContact{}
	if _, err := m.store.Get(store.KeyEmergencyContacts, &list); err != nil {
		return nil, err
	}

	return list, nil
}

// Save appends(or replaces, when the backend id matches) a contact and
// rewrites both the contact cache and the derived phone list.
func (m *Manager) Save(contact EmergencyContact) error {
	if err := contact.Validate(); err != nil {
		return err
	}

	list, err := m.List()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range list {
		if existing.ID != "" && existing.ID == contact.ID {
			list[i] = contact
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, contact)
	}

	return m.writeBoth(list)
}

func (m *Manager) Delete(id string) error {
	list, err := m.List()
	if err != nil {
		return err
	}

	kept := []EmergencyContact{}
	for _, contact := range list {
		if contact.ID == id {
			continue
		}
		kept = append(kept, contact)
	}

	return m.writeBoth(kept)
}

// ReplaceAll overwrites the cache with the given contact set, e.g. after a
// sync from the backend.
func (m *Manager) ReplaceAll(list []EmergencyContact) error {
	return m.writeBoth(list)
}

// PhoneList returns the derived dispatch-ready numbers. The persisted copy
// is preferred, but the list is always regenerable from the contact set.
func (m *Manager) PhoneList() ([]string, error) {
	persisted := []string{}
	found, err := m.store.Get(store.KeyPhoneList, &persisted)
	if err != nil {
		return nil, err
	}
	if found {
		return normalizeStrings(persisted), nil
	}

	list, err := m.List()
	if err != nil {
		return nil, err
	}

	return phoneListOf(list), nil
}

// RequirePhoneList is PhoneList that fails with ErrNoEmergencyContacts when
// no reachable contact exists. Alert flows must not proceed past this.
func (m *Manager) RequirePhoneList() ([]string, error) {
	phoneList, err := m.PhoneList()
	if err != nil {
		return nil, err
	}
	if len(phoneList) == 0 {
		return nil, ErrNoEmergencyContacts
	}

	return phoneList, nil
}

func (m *Manager) writeBoth(list []EmergencyContact) error {
	// Contact cache and phone list are written back to back so neither is
	// left stale relative to the other.
	if err := m.store.Set(store.KeyEmergencyContacts, list); err != nil {
		return err
	}

	return m.store.Set(store.KeyPhoneList, phoneListOf(list))
}

func phoneListOf(list []EmergencyContact) []string {
	rawList := make([]interface{}, len(list))
	for i, contact := range list {
		rawList[i] = contact
	}

	return NormalizePhoneNumbers(rawList)
}

func normalizeStrings(list []string) []string {
	rawList := make([]interface{}, len(list))
	for i, phone := range list {
		rawList[i] = phone
	}

	return NormalizePhoneNumbers(rawList)
}
