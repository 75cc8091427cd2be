// Copyright 2025 the Mediator.Net authors.
// Licensed under the MIT licence, see LICENCE file for details.

// Package config reads and validates the mediator's XML configuration file.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Duration is a time.Duration that XML-unmarshals from a Go duration string,
// e.g. "60s" or "1h30m", as element content or as an attribute.
type Duration time.Duration

// Value returns the wrapped time.Duration.
func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalXML implements xml.Unmarshaler for element content.
func (d *Duration) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.set(s))
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (d *Duration) UnmarshalXMLAttr(attr xml.Attr) error {
	return errors.Trace(d.set(attr.Value))
}

func (d *Duration) set(s string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return errors.NotValidf("duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// NamedValue is one free-form configuration entry of a module.
type NamedValue struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

// Historian describes one history database served by its own worker.
type Historian struct {
	Name            string `xml:"Name,attr"`
	File            string `xml:"File,attr"`
	PrioritizeReads *bool  `xml:"PrioritizeReads,attr"`
}

// PrioritizeReadRequests reports whether pending reads overtake pending
// writes in the worker queue. Defaults to true.
func (h Historian) PrioritizeReadRequests() bool {
	return h.PrioritizeReads == nil || *h.PrioritizeReads
}

// Module describes one hosted module instance.
type Module struct {
	ID                string       `xml:"ID,attr"`
	Name              string       `xml:"Name,attr"`
	Enabled           *bool        `xml:"Enabled,attr"`
	ConcurrentInit    bool         `xml:"ConcurrentInit,attr"`
	ImplAssembly      string       `xml:"ImplAssembly,attr"`
	ImplClass         string       `xml:"ImplClass,attr"`
	VariablesFileName string       `xml:"VariablesFileName,attr"`
	Historian         string       `xml:"Historian,attr"`
	Password          string       `xml:"Password,attr"`
	Config            []NamedValue `xml:"Config>NamedValue"`
}

// IsEnabled reports whether the module takes part in startup. Defaults to
// true.
func (m Module) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// FactoryKey is the registry key selecting the module implementation.
func (m Module) FactoryKey() string {
	if m.ImplAssembly == "" {
		return m.ImplClass
	}
	return m.ImplAssembly + "." + m.ImplClass
}

// User is one login account.
type User struct {
	Login    string `xml:"Login,attr"`
	Password string `xml:"Password,attr"`
	Roles    string `xml:"Roles,attr"`
}

// RoleList splits the comma-separated role names.
func (u User) RoleList() []string {
	var roles []string
	for _, r := range strings.Split(u.Roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// Role declares a role name for UIs to offer.
type Role struct {
	Name string `xml:"Name,attr"`
}

// Location is one node of the site hierarchy.
type Location struct {
	ID       string `xml:"ID,attr"`
	Name     string `xml:"Name,attr"`
	LongName string `xml:"LongName,attr"`
	Parent   string `xml:"Parent,attr"`
}

// Config is the root of the mediator configuration.
type Config struct {
	XMLName xml.Name `xml:"Mediator"`

	ClientListenHost      string   `xml:"ClientListenHost"`
	ClientListenPort      int      `xml:"ClientListenPort"`
	TimestampCheckWarning Duration `xml:"TimestampCheckWarning"`
	SessionIdleTimeout    Duration `xml:"SessionIdleTimeout"`
	StartCompleteFile     string   `xml:"StartCompleteFile"`

	Historians []Historian `xml:"Historians>Historian"`
	Modules    []Module    `xml:"Modules>Module"`
	Users      []User      `xml:"UserManagement>User"`
	Roles      []Role      `xml:"UserManagement>Role"`
	Locations  []Location  `xml:"Locations>Location"`
}

// DefaultHistorianName is used by modules that do not name one.
const DefaultHistorianName = "default"

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading config file")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "config file %q", path)
	}
	return cfg, nil
}

// Parse unmarshals, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Annotate(err, "parsing XML")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ClientListenHost == "" {
		c.ClientListenHost = "localhost"
	}
	if c.ClientListenPort == 0 {
		c.ClientListenPort = 8080
	}
	if c.TimestampCheckWarning == 0 {
		c.TimestampCheckWarning = Duration(time.Hour)
	}
	if c.SessionIdleTimeout == 0 {
		c.SessionIdleTimeout = Duration(60 * time.Second)
	}
	if len(c.Historians) == 0 {
		c.Historians = []Historian{{Name: DefaultHistorianName, File: "historian.db"}}
	}
	for i := range c.Modules {
		m := &c.Modules[i]
		if m.Name == "" {
			m.Name = m.ID
		}
		if m.VariablesFileName == "" {
			m.VariablesFileName = fmt.Sprintf("variables_%s.json", m.ID)
		}
		if m.Historian == "" {
			m.Historian = DefaultHistorianName
		}
	}
}

// Validate checks internal consistency. It is called by Load/Parse; callers
// constructing a Config directly must call it themselves.
func (c *Config) Validate() error {
	if c.ClientListenPort < 1 || c.ClientListenPort > 65535 {
		return errors.NotValidf("listen port %d", c.ClientListenPort)
	}
	historians := make(map[string]bool)
	for _, h := range c.Historians {
		if h.Name == "" {
			return errors.NotValidf("historian with empty name")
		}
		if h.File == "" {
			return errors.NotValidf("historian %q without file", h.Name)
		}
		if historians[h.Name] {
			return errors.NotValidf("duplicate historian %q", h.Name)
		}
		historians[h.Name] = true
	}
	modules := make(map[string]bool)
	for _, m := range c.Modules {
		if m.ID == "" {
			return errors.NotValidf("module with empty ID")
		}
		if strings.Contains(m.ID, ":") {
			return errors.NotValidf("module ID %q containing ':'", m.ID)
		}
		if modules[m.ID] {
			return errors.NotValidf("duplicate module ID %q", m.ID)
		}
		modules[m.ID] = true
		if m.ImplClass == "" {
			return errors.NotValidf("module %q without implementation class", m.ID)
		}
		if !historians[m.Historian] {
			return errors.NotValidf("module %q referencing unknown historian %q", m.ID, m.Historian)
		}
	}
	users := make(map[string]bool)
	for _, u := range c.Users {
		if u.Login == "" {
			return errors.NotValidf("user with empty login")
		}
		if users[u.Login] {
			return errors.NotValidf("duplicate user %q", u.Login)
		}
		users[u.Login] = true
	}
	locations := make(map[string]bool)
	for _, l := range c.Locations {
		if l.ID == "" {
			return errors.NotValidf("location with empty ID")
		}
		if locations[l.ID] {
			return errors.NotValidf("duplicate location %q", l.ID)
		}
		locations[l.ID] = true
	}
	for _, l := range c.Locations {
		if l.Parent != "" && !locations[l.Parent] {
			return errors.NotValidf("location %q referencing unknown parent %q", l.ID, l.Parent)
		}
	}
	return nil
}

// HistorianByName returns the named historian config.
func (c *Config) HistorianByName(name string) (Historian, error) {
	for _, h := range c.Historians {
		if h.Name == name {
			return h, nil
		}
	}
	return Historian{}, errors.NotFoundf("historian %q", name)
}

// UserByLogin returns the named user account.
func (c *Config) UserByLogin(login string) (User, error) {
	for _, u := range c.Users {
		if u.Login == login {
			return u, nil
		}
	}
	return User{}, errors.NotFoundf("user %q", login)
}

// ModuleByID returns the named module config.
func (c *Config) ModuleByID(id string) (Module, error) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, nil
		}
	}
	return Module{}, errors.NotFoundf("module %q", id)
}

// EnabledModules lists the modules taking part in startup, in file order.
func (c *Config) EnabledModules() []Module {
	var out []Module
	for _, m := range c.Modules {
		if m.IsEnabled() {
			out = append(out, m)
		}
	}
	return out
}
