// internal/config/config.go

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"buildClient/internal/models"
	"buildClient/internal/utils"
)

const (
	DefaultConfigFileName    = "config.yaml"
	DefaultFilePerms         = 0600
	DefaultTrustDir          = "trusted-certs"
	DefaultCookieJarFileName = "cookiejar"

	// FieldPass holds a plaintext password, FieldPassX an obfuscated one.
	FieldPass  = "pass"
	FieldPassX = "passx"

	ClassPlaintext  = "plaintext"
	ClassObfuscated = "obfuscated"
	ClassTransient  = "transient"
)

// General holds settings that are not bound to a single host.
type General struct {
	APIURL    string `yaml:"apiurl,omitempty"`
	CookieJar string `yaml:"cookiejar,omitempty"`
	TrustDir  string `yaml:"trusted_certs_dir,omitempty"`
	HTTPDebug bool   `yaml:"http_debug,omitempty"`
}

// HostEntry is one host section as it appears in the configuration file.
type HostEntry struct {
	APIURL              string `yaml:"apiurl"`
	User                string `yaml:"user,omitempty"`
	Pass                string `yaml:"pass,omitempty"`
	PassX               string `yaml:"passx,omitempty"`
	CredentialsMgrClass string `yaml:"credentials_mgr_class,omitempty"`
	SSHKey              string `yaml:"sshkey,omitempty"`
	SSLCertCk           *bool  `yaml:"sslcertck,omitempty"`
	CAFile              string `yaml:"cafile,omitempty"`
	HTTPRetries         *int   `yaml:"http_retries,omitempty"`
	RetryOnStatus       []int  `yaml:"retry_on_status,omitempty"`
	Realm               string `yaml:"realm,omitempty"`
}

type Config struct {
	General General     `yaml:"general"`
	Hosts   []HostEntry `yaml:"hosts"`
}

type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
}

// NewManager creates a configuration manager for configPath. An empty path
// selects the per-user default location.
func NewManager(configPath string) *Manager {
	if configPath == "" {
		defaultPath, err := GetDefaultConfigPath()
		if err == nil {
			configPath = defaultPath
		} else {
			configPath = DefaultConfigFileName
		}
	}

	return &Manager{
		configPath: configPath,
		config:     &Config{},
	}
}

// GetConfigPath returns the file the manager reads and writes.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Load reads the configuration file. A missing file yields an empty
// configuration which is written back so the user has a file to edit.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.config = &Config{Hosts: make([]HostEntry, 0)}
			log.Debugf("config file %s does not exist, creating an empty one", m.configPath)
			return m.saveLocked()
		}
		return fmt.Errorf("failed to read config file: %v", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %v", m.configPath, err)
	}
	if err := normalize(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", m.configPath, err)
	}
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", m.configPath, err)
	}

	m.config = cfg
	return nil
}

// Save writes the configuration file.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	tmp, err := os.CreateTemp(configDir, filepath.Base(m.configPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %v", err)
	}
	if err := tmp.Chmod(DefaultFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}
	if err := os.Rename(tmp.Name(), m.configPath); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}
	return nil
}

// General returns a copy of the general section.
func (m *Manager) General() General {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.General
}

// DefaultAPIURL returns the host used when the caller does not pick one.
func (m *Manager) DefaultAPIURL() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.General.APIURL != "" {
		return m.config.General.APIURL, nil
	}
	if len(m.config.Hosts) == 1 {
		return m.config.Hosts[0].APIURL, nil
	}
	return "", errors.New("no apiurl configured, set general.apiurl or pass --apiurl")
}

// CookieJarPath returns the configured cookie jar file or the default below the state directory.
func (m *Manager) CookieJarPath() (string, error) {
	m.mu.Lock()
	jar := m.config.General.CookieJar
	m.mu.Unlock()
	if jar != "" {
		return utils.ExpandHome(jar), nil
	}
	stateDir, err := utils.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, DefaultCookieJarFileName), nil
}

// TrustDir returns the directory holding permanently trusted certificates.
func (m *Manager) TrustDir() (string, error) {
	m.mu.Lock()
	dir := m.config.General.TrustDir
	m.mu.Unlock()
	if dir != "" {
		return utils.ExpandHome(dir), nil
	}
	configDir, err := utils.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, DefaultTrustDir), nil
}

// GetHosts returns a copy of all host entries.
func (m *Manager) GetHosts() []HostEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HostEntry(nil), m.config.Hosts...)
}

// AddHost adds a host entry; the apiurl must not be configured yet.
func (m *Manager) AddHost(host HostEntry) error {
	apiurl, err := models.NormalizeAPIURL(host.APIURL)
	if err != nil {
		return err
	}
	host.APIURL = apiurl

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findLocked(apiurl) >= 0 {
		return fmt.Errorf("host %s already exists", apiurl)
	}
	m.config.Hosts = append(m.config.Hosts, host)
	return nil
}

// DeleteHost removes the entry for apiurl.
func (m *Manager) DeleteHost(apiurl string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	index, err := m.indexLocked(apiurl)
	if err != nil {
		return err
	}
	m.config.Hosts = append(m.config.Hosts[:index], m.config.Hosts[index+1:]...)
	return nil
}

// HostOptions converts the entry for apiurl into transport options.
func (m *Manager) HostOptions(apiurl string) (*models.HostOptions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index, err := m.indexLocked(apiurl)
	if err != nil {
		return nil, err
	}
	return m.config.Hosts[index].Options(), nil
}

// Resolve returns the options of the configured host that serves rawURL.
func (m *Manager) Resolve(rawURL string) (*models.HostOptions, bool) {
	opts, err := m.HostOptions(rawURL)
	if err != nil {
		return nil, false
	}
	return opts, true
}

// Secret returns the stored value of a password field of a host.
func (m *Manager) Secret(apiurl, field string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index, err := m.indexLocked(apiurl)
	if err != nil {
		return "", false
	}
	host := &m.config.Hosts[index]
	switch field {
	case FieldPass:
		return host.Pass, host.Pass != ""
	case FieldPassX:
		return host.PassX, host.PassX != ""
	}
	return "", false
}

// SetSecret stores value in a password field of a host and saves the file.
// The other password field is cleared so only one representation is kept.
func (m *Manager) SetSecret(apiurl, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	index, err := m.indexLocked(apiurl)
	if err != nil {
		return err
	}
	host := &m.config.Hosts[index]
	switch field {
	case FieldPass:
		host.Pass, host.PassX = value, ""
	case FieldPassX:
		host.Pass, host.PassX = "", value
	default:
		return fmt.Errorf("unknown password field %q", field)
	}
	return m.saveLocked()
}

// DeleteSecret clears a password field of a host and saves the file.
func (m *Manager) DeleteSecret(apiurl, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	index, err := m.indexLocked(apiurl)
	if err != nil {
		return err
	}
	host := &m.config.Hosts[index]
	switch field {
	case FieldPass:
		host.Pass = ""
	case FieldPassX:
		host.PassX = ""
	default:
		return fmt.Errorf("unknown password field %q", field)
	}
	return m.saveLocked()
}

func (m *Manager) indexLocked(apiurl string) (int, error) {
	normalized, err := models.NormalizeAPIURL(apiurl)
	if err != nil {
		return -1, err
	}
	index := m.findLocked(normalized)
	if index < 0 {
		return -1, fmt.Errorf("host %s not found in %s", normalized, m.configPath)
	}
	return index, nil
}

func (m *Manager) findLocked(apiurl string) int {
	for i, host := range m.config.Hosts {
		if host.APIURL == apiurl {
			return i
		}
	}
	return -1
}

// Options converts the entry into transport options, applying defaults.
func (h *HostEntry) Options() *models.HostOptions {
	opts := &models.HostOptions{
		APIURL:                  h.APIURL,
		Username:                h.User,
		SSHKeyPath:              utils.ExpandHome(h.SSHKey),
		CertVerify:              h.SSLCertCk == nil || *h.SSLCertCk,
		CAPath:                  utils.ExpandHome(h.CAFile),
		RetryCount:              models.DefaultRetryCount,
		CredentialsManagerClass: h.CredentialsMgrClass,
		Realm:                   h.Realm,
	}
	if h.HTTPRetries != nil {
		opts.RetryCount = *h.HTTPRetries
	}
	if h.RetryOnStatus != nil {
		opts.RetryOnStatus = append([]int{}, h.RetryOnStatus...)
	}
	if opts.CredentialsManagerClass == "" {
		switch {
		case h.PassX != "":
			opts.CredentialsManagerClass = ClassObfuscated
		case h.Pass != "":
			opts.CredentialsManagerClass = ClassPlaintext
		default:
			opts.CredentialsManagerClass = ClassTransient
		}
	}
	switch opts.CredentialsManagerClass {
	case ClassObfuscated:
		opts.CredentialRef = h.PassX
	case ClassPlaintext:
		opts.CredentialRef = h.Pass
	}
	return opts
}

func normalize(cfg *Config) error {
	if cfg.General.APIURL != "" {
		apiurl, err := models.NormalizeAPIURL(cfg.General.APIURL)
		if err != nil {
			return err
		}
		cfg.General.APIURL = apiurl
	}
	for i := range cfg.Hosts {
		apiurl, err := models.NormalizeAPIURL(cfg.Hosts[i].APIURL)
		if err != nil {
			return fmt.Errorf("host #%d: %w", i+1, err)
		}
		cfg.Hosts[i].APIURL = apiurl
	}
	return nil
}

// GetDefaultConfigPath returns the per-user configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := utils.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, DefaultConfigFileName), nil
}
