package vars

import (
	"bufio"
	"io"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// osReleasePath is the freedesktop location of distribution metadata.
const osReleasePath = "/etc/os-release"

// Platform contains the built-in facts about the host Homestead runs on.
type Platform struct {
	// OS is the operating system as reported by the Go runtime (linux, darwin, windows, freebsd).
	OS string `json:"os"`

	// Family is the distribution identifier (debian, fedora, arch, ...).
	// On non-Linux systems it equals OS.
	Family string `json:"family"`

	// FamilyLike lists the distributions this one derives from (ID_LIKE).
	FamilyLike []string `json:"family_like,omitempty"`

	// Name is the human-readable distribution name.
	Name string `json:"name"`

	// Version is the distribution version identifier.
	Version string `json:"version"`

	// Arch is the CPU architecture as reported by the Go runtime.
	Arch string `json:"arch"`

	// Hostname is the host name of the machine.
	Hostname string `json:"hostname"`
}

// DetectPlatform collects platform facts for the current host.
func DetectPlatform() Platform {
	p := Platform{
		OS:     runtime.GOOS,
		Family: runtime.GOOS,
		Name:   runtime.GOOS,
		Arch:   runtime.GOARCH,
	}

	if hostname, err := os.Hostname(); err == nil {
		p.Hostname = hostname
	}

	if runtime.GOOS != "linux" {
		return p
	}

	f, err := os.Open(osReleasePath)
	if err != nil {
		return p
	}
	defer f.Close()

	return p.withOSRelease(ParseOSRelease(f))
}

// withOSRelease copies distribution facts from parsed os-release fields.
func (p Platform) withOSRelease(fields map[string]string) Platform {
	if id := strings.ToLower(fields["ID"]); id != "" {
		p.Family = id
	}
	if like := fields["ID_LIKE"]; like != "" {
		p.FamilyLike = strings.Fields(strings.ToLower(like))
	}
	if name := fields["NAME"]; name != "" {
		p.Name = name
	}
	p.Version = fields["VERSION_ID"]
	return p
}

// ParseOSRelease parses the KEY=value format of /etc/os-release.
// Quoted values are unquoted; comments and malformed lines are ignored.
func ParseOSRelease(r io.Reader) map[string]string {
	fields := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}

	return fields
}

// Candidates returns the family identifiers to try, in order, when looking
// up per-platform defaults: the family itself, its ID_LIKE parents, then OS.
func (p Platform) Candidates() []string {
	candidates := make([]string, 0, len(p.FamilyLike)+2)
	seen := make(map[string]bool)
	for _, c := range append(append([]string{p.Family}, p.FamilyLike...), p.OS) {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		candidates = append(candidates, c)
	}
	return candidates
}

// facts flattens the platform into the os.* namespace.
func (p Platform) facts() map[string]string {
	return map[string]string{
		"name":         p.OS,
		"family":       p.Family,
		"family_like":  strings.Join(p.FamilyLike, " "),
		"distribution": p.Name,
		"version":      p.Version,
		"arch":         p.Arch,
		"hostname":     p.Hostname,
	}
}

// userFacts returns the user.* namespace for the invoking user.
func userFacts() map[string]string {
	facts := make(map[string]string)

	if u, err := user.Current(); err == nil {
		facts["username"] = u.Username
		facts["home_dir"] = u.HomeDir
		facts["uid"] = u.Uid
	}
	if home, err := os.UserHomeDir(); err == nil {
		facts["home_dir"] = home
	}
	if dir, err := os.UserConfigDir(); err == nil {
		facts["config_dir"] = dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		facts["cache_dir"] = dir
	}

	return facts
}

// envFacts returns the env.* namespace from the process environment.
func envFacts() map[string]string {
	facts := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			facts[key] = value
		}
	}
	return facts
}
