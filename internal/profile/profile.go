// Package profile loads the personal-information document used to build the
// assistant's system prompt.
package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoProfile is returned when no profile path is configured.
var ErrNoProfile = errors.New("profile: no profile configured")

// Profile describes the person the assistant represents.
type Profile struct {
	Name               string    `yaml:"name" json:"name"`
	Title              string    `yaml:"title" json:"title"`
	Location           string    `yaml:"location" json:"location"`
	Summary            string    `yaml:"summary" json:"summary"`
	YearsExperience    int       `yaml:"years_experience" json:"years_experience"`
	Achievements       []string  `yaml:"achievements" json:"achievements"`
	Skills             []Skill   `yaml:"skills" json:"skills"`
	Projects           []Project `yaml:"projects" json:"projects"`
	Strengths          []string  `yaml:"strengths" json:"strengths"`
	CommunicationStyle []string  `yaml:"communication_style" json:"communication_style"`
	Contact            Contact   `yaml:"contact" json:"contact"`
}

// Skill is a technical skill with a self-assessed proficiency.
type Skill struct {
	Name        string `yaml:"name" json:"name"`
	Proficiency string `yaml:"proficiency" json:"proficiency"`
	Category    string `yaml:"category" json:"category"`
}

// Project is a portfolio project summary.
type Project struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	Technologies []string `yaml:"technologies" json:"technologies"`
	Impact       string   `yaml:"impact" json:"impact"`
	Featured     bool     `yaml:"featured" json:"featured"`
	URL          string   `yaml:"url" json:"url"`
}

// Contact lists public contact points.
type Contact struct {
	Email    string `yaml:"email" json:"email"`
	GitHub   string `yaml:"github" json:"github"`
	LinkedIn string `yaml:"linkedin" json:"linkedin"`
	Website  string `yaml:"website" json:"website"`
}

// FeaturedProjects returns projects marked featured, or every project when
// none are.
func (p *Profile) FeaturedProjects() []Project {
	var out []Project
	for _, proj := range p.Projects {
		if proj.Featured {
			out = append(out, proj)
		}
	}
	if len(out) == 0 {
		return p.Projects
	}
	return out
}

// Parse decodes a YAML or JSON profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.Name == "" {
		return nil, errors.New("decode profile: name is required")
	}
	return &p, nil
}

// Load reads and parses the profile at path.
func Load(path string) (*Profile, error) {
	if path == "" {
		return nil, ErrNoProfile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return Parse(data)
}

// Fallback is the minimal profile used when the document cannot be loaded.
func Fallback() *Profile {
	return &Profile{
		Name:    "the site owner",
		Title:   "Software Engineer",
		Summary: "A software engineer who builds web applications and backend services.",
		Strengths: []string{
			"Problem solving",
			"Clear communication",
		},
		CommunicationStyle: []string{"Friendly", "Concise"},
	}
}

// Source supplies the current profile.
type Source interface {
	Profile(ctx context.Context) (*Profile, error)
}

// FileSource loads a profile from disk and reloads it when the file's
// modification time changes.
type FileSource struct {
	path string

	mu      sync.Mutex
	cached  *Profile
	modTime time.Time
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Profile returns the cached profile, reloading it if the file changed.
func (s *FileSource) Profile(_ context.Context) (*Profile, error) {
	if s.path == "" {
		return nil, ErrNoProfile
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat profile %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && info.ModTime().Equal(s.modTime) {
		return s.cached, nil
	}

	p, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	s.cached = p
	s.modTime = info.ModTime()
	return p, nil
}

// Static is a Source that always returns the same profile.
type Static struct {
	P *Profile
}

// Profile returns the wrapped profile, or ErrNoProfile when it is nil.
func (s Static) Profile(context.Context) (*Profile, error) {
	if s.P == nil {
		return nil, ErrNoProfile
	}
	return s.P, nil
}
