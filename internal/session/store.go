package session

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/spf13/viper"
)

// State is what survives between runs.
type State struct {
	Email   string
	Cookies []*http.Cookie
}

type Store interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

const (
	keyEmail   = "email"
	keyCookies = "cookies"
)

// ViperStore keeps the session in the CLI config file.
type ViperStore struct {
	v *viper.Viper
}

func NewViperStore(v *viper.Viper) *ViperStore {
	return &ViperStore{v: v}
}

func (s *ViperStore) Load() (State, error) {
	st := State{Email: s.v.GetString(keyEmail)}
	for _, raw := range s.v.GetStringSlice(keyCookies) {
		c, err := http.ParseSetCookie(raw)
		if err != nil {
			return State{}, fmt.Errorf("parse stored cookie: %w", err)
		}
		st.Cookies = append(st.Cookies, c)
	}
	return st, nil
}

func (s *ViperStore) Save(st State) error {
	raw := make([]string, 0, len(st.Cookies))
	for _, c := range st.Cookies {
		raw = append(raw, c.String())
	}
	s.v.Set(keyEmail, st.Email)
	s.v.Set(keyCookies, raw)
	return s.write()
}

func (s *ViperStore) Clear() error {
	s.v.Set(keyEmail, "")
	s.v.Set(keyCookies, []string{})
	return s.write()
}

func (s *ViperStore) write() error {
	if err := s.v.WriteConfig(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// MemoryStore keeps the session for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

func (s *MemoryStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *MemoryStore) Save(st State) error {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.Save(State{})
}
