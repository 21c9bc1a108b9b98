// Package content loads the editable site copy: the chat greeting, teaser
// prompts and email templates.
package content

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"github.com/BurntSushi/toml"

	"github.com/ashureev/portfolio/internal/chat"
)

// EmailTemplate is a canned prompt for the email assistant.
type EmailTemplate struct {
	Title  string `toml:"title" json:"title"`
	Prompt string `toml:"prompt" json:"prompt"`
}

// Site is the decoded content file.
type Site struct {
	Greeting       string          `toml:"greeting"`
	Teasers        []string        `toml:"teasers"`
	EmailTemplates []EmailTemplate `toml:"email_templates"`
}

// Defaults returns the built-in site content.
func Defaults() *Site {
	return &Site{
		Greeting: chat.DefaultGreeting,
		Teasers: []string{
			"It's not 2025 if you don't interact with the AI!",
			"Discover my portfolio secrets with AI assistance!",
			"Ask my AI anything about my work - it knows more than I do!",
			"This AI can tell you things about me I forgot to mention...",
			"Feeling curious? My AI assistant is waiting to chat!",
			"Don't scroll past without saying hi to my AI!",
			"The future is here - talk to my portfolio AI!",
			"Psst... My AI assistant knows all my coding secrets!",
			"Want to know more? I'm the AI that knows it all!",
		},
		EmailTemplates: []EmailTemplate{
			{Title: "Job opportunity", Prompt: "Write a short email inviting Javed to interview for a backend engineering role at my company."},
			{Title: "Freelance project", Prompt: "Write an email asking Javed about availability and rates for a freelance web project."},
			{Title: "Collaboration", Prompt: "Write a friendly email proposing a collaboration on an open source project."},
			{Title: "Just saying hi", Prompt: "Write a casual email saying I enjoyed the portfolio and would like to connect."},
		},
	}
}

// Load decodes path over the defaults. A missing file yields the defaults.
func Load(path string) (*Site, error) {
	site := Defaults()
	if path == "" {
		return site, nil
	}

	var decoded Site
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return site, nil
		}
		return nil, fmt.Errorf("decode content %s: %w", path, err)
	}

	if g := strings.TrimSpace(decoded.Greeting); g != "" {
		site.Greeting = g
	}
	if teasers := nonEmpty(decoded.Teasers); len(teasers) > 0 {
		site.Teasers = teasers
	}
	if len(decoded.EmailTemplates) > 0 {
		templates := make([]EmailTemplate, 0, len(decoded.EmailTemplates))
		for _, t := range decoded.EmailTemplates {
			if strings.TrimSpace(t.Prompt) == "" {
				continue
			}
			templates = append(templates, t)
		}
		if len(templates) > 0 {
			site.EmailTemplates = templates
		}
	}
	return site, nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Store holds the current site content and swaps it atomically on reload.
type Store struct {
	site atomic.Pointer[Site]
}

// NewStore returns a store holding site, or the defaults when site is nil.
func NewStore(site *Site) *Store {
	if site == nil {
		site = Defaults()
	}
	s := &Store{}
	s.site.Store(site)
	return s
}

// Current returns the active content. Callers must not mutate it.
func (s *Store) Current() *Site {
	return s.site.Load()
}

// Set replaces the active content.
func (s *Store) Set(site *Site) {
	if site != nil {
		s.site.Store(site)
	}
}

// Greeting returns the chat greeting.
func (s *Store) Greeting() string {
	return s.Current().Greeting
}

// Teaser returns a random teaser prompt.
func (s *Store) Teaser() string {
	teasers := s.Current().Teasers
	if len(teasers) == 0 {
		return ""
	}
	return teasers[rand.IntN(len(teasers))]
}

// EmailTemplates returns a copy of the email templates.
func (s *Store) EmailTemplates() []EmailTemplate {
	return append([]EmailTemplate(nil), s.Current().EmailTemplates...)
}
